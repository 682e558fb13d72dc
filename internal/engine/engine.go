// Package engine はページ単位のPDF変換（結合・分割・画像変換・圧縮・パスワード設定）を提供します。
// すべての処理はリクエスト単位で完結し、ネットワーク・ディスク・ログには触れません。
package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/cbemstar/image-converter-app/internal/document"
	"github.com/cbemstar/image-converter-app/internal/ghostscript"
	"github.com/cbemstar/image-converter-app/internal/pagerange"
	"github.com/cbemstar/image-converter-app/internal/raster"
)

// Distiller はPDFを再生成して軽量化します（Ghostscript pdfwrite）。
type Distiller interface {
	Distill(ctx context.Context, pdf []byte, preset ghostscript.Preset) ([]byte, error)
}

// Config は Engine の依存関係です。
type Config struct {
	Rasterizer *raster.Rasterizer
	Distiller  Distiller
	// Concurrency はPDF→画像変換で同時に処理するファイル数です。0以下は1として扱います。
	Concurrency int
}

// Engine は変換処理の入口です。状態を持たないため複数リクエストから共有できます。
type Engine struct {
	raster      *raster.Rasterizer
	distiller   Distiller
	concurrency int
}

// New は Engine を作成します。
func New(cfg Config) *Engine {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	rz := cfg.Rasterizer
	if rz == nil {
		rz = raster.New(nil)
	}
	return &Engine{
		raster:      rz,
		distiller:   cfg.Distiller,
		concurrency: concurrency,
	}
}

// Rasterizer はページ・画像の画像化に使う Rasterizer を返します。
func (e *Engine) Rasterizer() *raster.Rasterizer {
	return e.raster
}

// Source は1つの入力ファイルです。Range は分割・画像変換でファイルごとに対象ページを絞る場合に使います。
type Source struct {
	Name     string
	Data     []byte
	Password string
	Range    string
}

// Progress はバッチ処理の進捗です。Source 番目のファイルの Total 件中 Done 件が完了したことを表します。
type Progress struct {
	Source  int
	Sources int
	Done    int
	Total   int
}

// Fraction は全体に対する完了割合 [0, 1] を返します。
func (p Progress) Fraction() float64 {
	if p.Sources <= 0 {
		return 0
	}
	inner := 1.0
	if p.Total > 0 {
		inner = float64(p.Done) / float64(p.Total)
	}
	f := (float64(p.Source) + inner) / float64(p.Sources)
	if f > 1 {
		f = 1
	}
	return f
}

// ProgressFunc は進捗通知のコールバックです。
type ProgressFunc func(Progress)

func (f ProgressFunc) report(p Progress) {
	if f != nil {
		f(p)
	}
}

// openSource はソースを開き、失敗を種別付きエラーに変換します。
func openSource(src Source) (*document.Document, error) {
	var opts []document.Option
	if src.Password != "" {
		opts = append(opts, document.WithPassword(src.Password))
	}
	doc, err := document.Open(src.Data, opts...)
	if err != nil {
		kind := CorruptDocument
		if errors.Is(err, document.ErrPassword) {
			kind = PasswordRequired
		}
		return nil, &Error{Kind: kind, Source: src.Name, Err: err}
	}
	return doc, nil
}

// selectPages は範囲式を解析します。空の式は全ページを意味します。
func selectPages(expr string, pageCount int) ([]int, error) {
	if strings.TrimSpace(expr) == "" {
		all := make([]int, pageCount)
		for i := range all {
			all[i] = i
		}
		return all, nil
	}

	indices, err := pagerange.Parse(expr, pageCount)
	if err != nil {
		var segErr *pagerange.SegmentError
		if errors.As(err, &segErr) {
			return nil, &Error{Kind: InvalidRangeSegment, Segment: segErr.Segment, Err: err}
		}
		return nil, &Error{Kind: InvalidRangeSegment, Segment: expr, Err: err}
	}
	return indices, nil
}
