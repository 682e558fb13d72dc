package document

import (
	"bytes"
	"errors"
	"io"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
)

// ErrEmptyBuilder は1ページも追加されていない Builder を出力しようとしたことを表します。
var ErrEmptyBuilder = errors.New("no pages were added")

// Builder は複数ソースから切り出したパートを入力順に蓄積し、最後に1つのPDFへ結合します。
// パートはシリアライズ済みのため、元ドキュメントへの参照は残りません。
type Builder struct {
	parts [][]byte
	pages int
}

// Add はドキュメントをシリアライズして末尾に追加します。
func (b *Builder) Add(doc *Document) error {
	data, err := doc.Bytes()
	if err != nil {
		return err
	}
	b.AddBytes(data, doc.PageCount())
	return nil
}

// AddBytes はシリアライズ済みのPDFを末尾に追加します。
func (b *Builder) AddBytes(data []byte, pages int) {
	b.parts = append(b.parts, data)
	b.pages += pages
}

// Pages はこれまでに追加された合計ページ数です。
func (b *Builder) Pages() int {
	return b.pages
}

// Len は追加されたパート数です。
func (b *Builder) Len() int {
	return len(b.parts)
}

// Bytes は全パートを追加順に結合したPDFを返します。
func (b *Builder) Bytes() ([]byte, error) {
	switch len(b.parts) {
	case 0:
		return nil, ErrEmptyBuilder
	case 1:
		return b.parts[0], nil
	}

	readers := make([]io.ReadSeeker, len(b.parts))
	for i, part := range b.parts {
		readers[i] = bytes.NewReader(part)
	}

	var out bytes.Buffer
	if err := pdfapi.MergeRaw(readers, &out, false, NewConfiguration("")); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
