// Package pdftest はテスト用の最小構成PDFを組み立てます。
package pdftest

import (
	"bytes"
	"fmt"
)

// Page はテストPDFの1ページ分の設定です。幅・高さはポイント単位で、0の場合はLetterサイズになります。
type Page struct {
	Width  float64
	Height float64
	Rotate int
}

// Pages は回転指定のないLetterサイズのページを n 枚返します。
func Pages(n int) []Page {
	return make([]Page, n)
}

// Build はページごとに小さな矩形を描画する、xrefテーブル付きのPDFを生成します。
// オブジェクト番号は 1: Catalog, 2: Pages, 3+2i: Page, 4+2i: Contents です。
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	offsets := make([]int, 0, 2+2*len(pages))

	buf.WriteString("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n")

	writeObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	writeObj(1, "<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := range pages {
		if i > 0 {
			kids.WriteByte(' ')
		}
		fmt.Fprintf(&kids, "%d 0 R", 3+2*i)
	}
	writeObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), len(pages)))

	for i, p := range pages {
		w, h := p.Width, p.Height
		if w == 0 {
			w = 612
		}
		if h == 0 {
			h = 792
		}

		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %g %g] /Resources << >> /Contents %d 0 R", w, h, 4+2*i)
		if p.Rotate != 0 {
			page += fmt.Sprintf(" /Rotate %d", p.Rotate)
		}
		page += " >>"
		writeObj(3+2*i, page)

		// ページ番号ごとに位置の異なる矩形を置き、コピー後も識別できるようにする
		content := fmt.Sprintf("q 0 0 1 rg %d 10 20 20 re f Q", 10+30*i)
		writeObj(4+2*i, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xrefOffset := buf.Len()
	size := len(offsets) + 1
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f\r\n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n\r\n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xrefOffset)

	return buf.Bytes()
}
