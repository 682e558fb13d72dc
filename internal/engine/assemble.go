package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/cbemstar/image-converter-app/internal/document"
)

// EditSpec はソースごとの編集内容です。
// Deletes は範囲選択後の列の位置、Reorder は削除後の列の位置、Rotations は最終列の位置を基準にします。
// Deletes・Reorder が空の場合は指定なしとして扱います。
type EditSpec struct {
	Range     string `json:"range"`
	Deletes   []int  `json:"deletes,omitempty"`
	Reorder   []int  `json:"reorder,omitempty"`
	Rotations []*int `json:"rotations,omitempty"`
}

// AssemblySource は入力ファイルとその編集内容の組です。
type AssemblySource struct {
	Source
	Spec EditSpec
}

// Request は結合リクエストです。出力は Sources の順に各ソースの最終列を連結したものになります。
type Request struct {
	Sources  []AssemblySource
	Progress ProgressFunc
}

// SourceSummary は結合に使われた各ソースの内訳です。Selected は元ドキュメントの0始まりページ番号を出力順に並べたものです。
type SourceSummary struct {
	Name        string `json:"name"`
	SourcePages int    `json:"sourcePages"`
	Selected    []int  `json:"selected"`
}

// Output は結合結果です。
type Output struct {
	Data    []byte          `json:"-"`
	Pages   int             `json:"pages"`
	Sources []SourceSummary `json:"sources"`
}

// Assemble は全ソースに編集パイプラインを適用し、1つのPDFにまとめます。
// いずれかのソースでエラーが起きた場合は結合全体を中止し、部分的な出力は返しません。
func (e *Engine) Assemble(ctx context.Context, req Request) (*Output, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(req.Sources) == 0 {
		return nil, &Error{Kind: InvalidOption, Err: errors.New("at least one source is required")}
	}

	var (
		builder   document.Builder
		summaries = make([]SourceSummary, 0, len(req.Sources))
	)

	for i, src := range req.Sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		part, summary, err := assembleSource(src)
		if err != nil {
			return nil, withSource(err, src.Name)
		}
		if part != nil {
			if err := builder.Add(part); err != nil {
				return nil, &Error{Kind: CorruptDocument, Source: src.Name, Err: err}
			}
		}
		summaries = append(summaries, summary)

		req.Progress.report(Progress{Source: i, Sources: len(req.Sources), Done: 1, Total: 1})
	}

	if builder.Pages() == 0 {
		return nil, &Error{Kind: InvalidOption, Err: errors.New("no pages remain after applying the edits")}
	}

	data, err := builder.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to merge assembled pages: %w", err)
	}

	return &Output{
		Data:    data,
		Pages:   builder.Pages(),
		Sources: summaries,
	}, nil
}

// assembleSource は1ソース分のパイプラインを実行し、出力に追加するページだけを含む新しいドキュメントを返します。
// 最終列が空の場合は nil を返します。
func assembleSource(src AssemblySource) (*document.Document, SourceSummary, error) {
	summary := SourceSummary{Name: src.Name}

	doc, err := openSource(src.Source)
	if err != nil {
		return nil, summary, err
	}
	summary.SourcePages = doc.PageCount()

	selected, err := selectPages(src.Spec.Range, doc.PageCount())
	if err != nil {
		return nil, summary, err
	}
	kept, err := applyDeletes(selected, src.Spec.Deletes)
	if err != nil {
		return nil, summary, err
	}
	final, err := applyReorder(kept, src.Spec.Reorder)
	if err != nil {
		return nil, summary, err
	}
	summary.Selected = final

	if len(final) == 0 {
		return nil, summary, nil
	}

	part, err := doc.Extract(final)
	if err != nil {
		return nil, summary, &Error{Kind: CorruptDocument, Err: err}
	}

	for j := range final {
		deg, ok := rotationAt(src.Spec.Rotations, j)
		if !ok {
			continue
		}
		if err := part.SetRotation(j, deg); err != nil {
			return nil, summary, &Error{Kind: CorruptDocument, Err: err}
		}
	}

	return part, summary, nil
}
