package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cbemstar/image-converter-app/internal/document"
	"github.com/cbemstar/image-converter-app/internal/raster"
)

// BatchResult は分割・画像変換の結果です。失敗した項目は Errors に記録され、残りの項目は処理を続けます。
type BatchResult struct {
	Archive   []byte      `json:"-"`
	Entries   []Entry     `json:"entries"`
	Errors    []ItemError `json:"errors,omitempty"`
	Processed int         `json:"processed"`
	Total     int         `json:"total"`
}

// SplitOptions は分割の設定です。
// Indices（0始まり）が指定されていればそれを、なければ Source.Range、Range の順に範囲式を使い、いずれも空なら全ページを対象にします。
// Format が空または "pdf" の場合は1ページPDFを、それ以外はラスター画像を出力します。
type SplitOptions struct {
	Indices  []int
	Range    string
	Format   string
	Raster   raster.Options
	Progress ProgressFunc
}

// Split は各ページを独立した1ページのドキュメント（または画像）にしてアーカイブへまとめます。
// ファイル名は単一ソースなら page-{n}.{ext}、複数ソースなら {stem}/page-{n}.{ext} です（n は1始まりの元ページ番号）。
func (e *Engine) Split(ctx context.Context, sources []Source, opts SplitOptions) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(sources) == 0 {
		return nil, &Error{Kind: InvalidOption, Err: errors.New("at least one source is required")}
	}

	asPDF := opts.Format == "" || strings.EqualFold(opts.Format, "pdf")
	ext := "pdf"
	rasterOpts := opts.Raster
	if !asPDF {
		format, err := raster.ParseFormat(opts.Format)
		if err != nil {
			return nil, &Error{Kind: UnsupportedFormat, Err: err}
		}
		rasterOpts.Format = format
		rasterOpts = rasterOpts.Normalize()
		if err := rasterOpts.Validate(); err != nil {
			return nil, rasterOptionError(err)
		}
		ext = format.Extension()
	}

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	dirs := stems(names)

	archive := NewArchive()
	result := &BatchResult{}

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := openSource(src)
		if err != nil {
			result.Total++
			result.Errors = append(result.Errors, ItemError{Source: src.Name, Err: err})
			opts.Progress.report(Progress{Source: i, Sources: len(sources), Done: 1, Total: 1})
			continue
		}

		indices, err := e.splitIndices(doc, src, opts)
		if err != nil {
			result.Total++
			result.Errors = append(result.Errors, ItemError{Source: src.Name, Err: withSource(err, src.Name)})
			opts.Progress.report(Progress{Source: i, Sources: len(sources), Done: 1, Total: 1})
			continue
		}

		result.Total += len(indices)
		for done, idx := range indices {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			name := fmt.Sprintf("page-%d.%s", idx+1, ext)
			if len(sources) > 1 {
				name = dirs[i] + "/" + name
			}

			data, err := e.splitPage(ctx, doc, idx, asPDF, rasterOpts)
			if err == nil {
				err = archive.Add(Entry{Name: name, Source: src.Name, Page: idx + 1}, data)
			}
			if err != nil {
				result.Errors = append(result.Errors, ItemError{Source: src.Name, Page: idx + 1, Err: err})
			}
			result.Processed++

			opts.Progress.report(Progress{Source: i, Sources: len(sources), Done: done + 1, Total: len(indices)})
		}
	}

	data, err := archive.Close()
	if err != nil {
		return nil, err
	}
	result.Archive = data
	result.Entries = archive.Entries()
	return result, nil
}

func (e *Engine) splitIndices(doc *document.Document, src Source, opts SplitOptions) ([]int, error) {
	if len(opts.Indices) > 0 {
		seen := make(map[int]struct{}, len(opts.Indices))
		out := make([]int, 0, len(opts.Indices))
		for _, idx := range opts.Indices {
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			out = append(out, idx)
		}
		return out, nil
	}

	expr := src.Range
	if strings.TrimSpace(expr) == "" {
		expr = opts.Range
	}
	return selectPages(expr, doc.PageCount())
}

// splitPage は1ページを新しいドキュメントへ複製し、PDFまたは画像として返します。
func (e *Engine) splitPage(ctx context.Context, doc *document.Document, idx int, asPDF bool, opts raster.Options) ([]byte, error) {
	if idx < 0 || idx >= doc.PageCount() {
		return nil, fmt.Errorf("%w: %d", document.ErrPageOutOfRange, idx)
	}

	part, err := doc.Extract([]int{idx})
	if err != nil {
		return nil, err
	}
	data, err := part.Bytes()
	if err != nil {
		return nil, err
	}
	if asPDF {
		return data, nil
	}
	return e.raster.RasterizePage(ctx, data, 0, opts)
}

func rasterOptionError(err error) error {
	if errors.Is(err, raster.ErrUnsupportedFormat) {
		return &Error{Kind: UnsupportedFormat, Err: err}
	}
	return &Error{Kind: InvalidOption, Err: err}
}
