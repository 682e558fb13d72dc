package engine

import (
	"context"
)

// PageInfo は1ページの表示サイズ（ポイント）と回転角です。
type PageInfo struct {
	Index    int     `json:"index"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// Inspection はドキュメントの概要です。
type Inspection struct {
	Name      string     `json:"name"`
	Size      int        `json:"size"`
	PageCount int        `json:"pageCount"`
	Encrypted bool       `json:"encrypted"`
	Pages     []PageInfo `json:"pages"`
}

// Inspect はページ数と各ページのサイズ・回転角を返します。
func (e *Engine) Inspect(ctx context.Context, src Source) (*Inspection, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	doc, err := openSource(src)
	if err != nil {
		return nil, err
	}

	info := &Inspection{
		Name:      src.Name,
		Size:      len(src.Data),
		PageCount: doc.PageCount(),
		Encrypted: doc.Encrypted(),
		Pages:     make([]PageInfo, 0, doc.PageCount()),
	}
	for i := 0; i < doc.PageCount(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, h, err := doc.PageSize(i)
		if err != nil {
			return nil, &Error{Kind: CorruptDocument, Source: src.Name, Err: err}
		}
		rot, err := doc.Rotation(i)
		if err != nil {
			return nil, &Error{Kind: CorruptDocument, Source: src.Name, Err: err}
		}
		info.Pages = append(info.Pages, PageInfo{Index: i, Width: w, Height: h, Rotation: rot})
	}
	return info, nil
}
