package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/cbemstar/image-converter-app/internal/document"
	"github.com/cbemstar/image-converter-app/internal/ghostscript"
)

// Level は圧縮レベルです。
type Level string

const (
	// LevelLow はオブジェクトストリームを使わず、従来形式の xref テーブルで書き出します。
	LevelLow Level = "low"
	// LevelMedium はオブジェクトストリームと xref ストリームを使います。
	LevelMedium Level = "medium"
	// LevelHigh は medium に加え、Distiller があれば /ebook で再生成し小さい方を採用します。
	LevelHigh Level = "high"
)

// ParseLevel は圧縮レベルを解釈します。空文字は medium です。
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case "", LevelMedium:
		return LevelMedium, nil
	case LevelLow:
		return LevelLow, nil
	case LevelHigh:
		return LevelHigh, nil
	default:
		return "", &Error{Kind: InvalidOption, Err: fmt.Errorf("compression level must be low, medium or high (received: %s)", s)}
	}
}

// CompressResult は圧縮結果です。
type CompressResult struct {
	Data         []byte `json:"-"`
	Level        Level  `json:"level"`
	OriginalSize int    `json:"originalSize"`
	OutputSize   int    `json:"outputSize"`
	Pages        int    `json:"pages"`
	Distilled    bool   `json:"distilled"`
}

// SavedPercent は元サイズに対する削減率（%）です。
func (r *CompressResult) SavedPercent() float64 {
	if r.OriginalSize == 0 {
		return 0
	}
	return float64(r.OriginalSize-r.OutputSize) / float64(r.OriginalSize) * 100
}

// Compress はドキュメントを再シリアライズして軽量化します。ページ内容は変更しません。
func (e *Engine) Compress(ctx context.Context, src Source, level Level) (*CompressResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	level, err := ParseLevel(string(level))
	if err != nil {
		return nil, err
	}

	doc, err := openSource(src)
	if err != nil {
		return nil, err
	}

	conf := document.NewConfiguration(src.Password)
	conf.WriteObjectStream = level != LevelLow
	conf.WriteXRefStream = level != LevelLow

	var out bytes.Buffer
	err = guard(func() error {
		return pdfapi.Optimize(bytes.NewReader(src.Data), &out, conf)
	})
	if err != nil {
		return nil, &Error{Kind: classifyPDFError(err), Source: src.Name, Err: err}
	}

	result := &CompressResult{
		Data:         out.Bytes(),
		Level:        level,
		OriginalSize: len(src.Data),
		Pages:        doc.PageCount(),
	}

	// 暗号化されたドキュメントを再生成すると保護が外れるため distill しない
	if level == LevelHigh && e.distiller != nil && !doc.Encrypted() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		distilled, err := e.distiller.Distill(ctx, result.Data, ghostscript.PresetEbook)
		switch {
		case errors.Is(err, ghostscript.ErrNotConfigured):
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &Error{Kind: CorruptDocument, Source: src.Name, Err: err}
		case len(distilled) > 0 && len(distilled) < len(result.Data):
			result.Data = distilled
			result.Distilled = true
		}
	}

	result.OutputSize = len(result.Data)
	return result, nil
}
