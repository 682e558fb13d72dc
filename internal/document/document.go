// Package document は pdfcpu を薄くラップし、ページ数取得・ページコピー・回転などのページ単位操作を提供します。
package document

import (
	"bytes"
	"errors"
	"fmt"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var (
	// ErrCorrupt はPDFとして読み込めないバイト列を表します。
	ErrCorrupt = errors.New("document could not be opened")
	// ErrPassword はパスワードが未指定または誤っていることを表します。
	ErrPassword = errors.New("document password is missing or wrong")
	// ErrPageOutOfRange は存在しないページを参照したことを表します。
	ErrPageOutOfRange = errors.New("page index out of range")
)

// Document は読み込み済みPDFのページ構造を保持します。
type Document struct {
	ctx *model.Context
}

type options struct {
	password string
}

// Option は Open の挙動を変更します。
type Option func(*options)

// WithPassword はユーザー/オーナーパスワードを設定して開きます。
func WithPassword(pw string) Option {
	return func(o *options) {
		o.password = pw
	}
}

// NewConfiguration は本パッケージ共通の pdfcpu 設定を返します。
func NewConfiguration(password string) *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	if password != "" {
		conf.UserPW = password
		conf.OwnerPW = password
	}
	return conf
}

// Open はバイト列をPDFとして読み込み、検証します。
func Open(data []byte, opts ...Option) (doc *Document, err error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	// 壊れた入力で pdfcpu が panic する場合があるため、構造化エラーに変換する
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	ctx, err := pdfapi.ReadValidateAndOptimize(bytes.NewReader(data), NewConfiguration(o.password))
	if err != nil {
		if errors.Is(err, pdfcpu.ErrWrongPassword) {
			return nil, fmt.Errorf("%w: %v", ErrPassword, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	return &Document{ctx: ctx}, nil
}

// PageCountOf はバイト列を開いてページ数のみを返します。
func PageCountOf(data []byte, opts ...Option) (int, error) {
	doc, err := Open(data, opts...)
	if err != nil {
		return 0, err
	}
	return doc.PageCount(), nil
}

// PageCount はページ数を返します。
func (d *Document) PageCount() int {
	return d.ctx.PageCount
}

// Encrypted は元のPDFが暗号化されていたかを返します。
func (d *Document) Encrypted() bool {
	return d.ctx.Encrypt != nil
}

func (d *Document) checkIndex(i int) error {
	if i < 0 || i >= d.PageCount() {
		return fmt.Errorf("%w: %d (pages: %d)", ErrPageOutOfRange, i, d.PageCount())
	}
	return nil
}

// Rotation は0始まりのページ i に適用されている回転角（継承分を含む）を返します。
func (d *Document) Rotation(i int) (int, error) {
	if err := d.checkIndex(i); err != nil {
		return 0, err
	}
	_, _, inh, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return 0, err
	}
	return NormalizeRotation(inh.Rotate), nil
}

// SetRotation はページ i の回転角を絶対値で設定します（既存の回転には加算しません）。
func (d *Document) SetRotation(i, degrees int) error {
	if err := d.checkIndex(i); err != nil {
		return err
	}
	pageDict, _, _, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return fmt.Errorf("page dict not found: %d", i)
	}
	pageDict.Update("Rotate", types.Integer(NormalizeRotation(degrees)))
	return nil
}

// PageSize はページ i の表示領域（CropBox、なければ MediaBox）の幅と高さをポイント単位で返します。
func (d *Document) PageSize(i int) (float64, float64, error) {
	if err := d.checkIndex(i); err != nil {
		return 0, 0, err
	}
	_, _, inh, err := d.ctx.PageDict(i+1, false)
	if err != nil {
		return 0, 0, err
	}
	box := inh.CropBox
	if box == nil {
		box = inh.MediaBox
	}
	if box == nil {
		return 0, 0, fmt.Errorf("page %d has no media box", i+1)
	}
	return box.Width(), box.Height(), nil
}

// Extract は指定ページを指定順に新しいドキュメントへ複製します。
// 同じページを複数回指定した場合もページオブジェクトはそれぞれ独立します。
func (d *Document) Extract(indices []int) (*Document, error) {
	if len(indices) == 0 {
		return nil, errors.New("no pages to extract")
	}
	pageNrs := make([]int, len(indices))
	for i, idx := range indices {
		if err := d.checkIndex(idx); err != nil {
			return nil, err
		}
		pageNrs[i] = idx + 1
	}

	ctx, err := pdfcpu.ExtractPages(d.ctx, pageNrs, false)
	if err != nil {
		return nil, fmt.Errorf("failed to extract pages: %w", err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, fmt.Errorf("failed to count extracted pages: %w", err)
	}
	return &Document{ctx: ctx}, nil
}

// Bytes はドキュメントをシリアライズします。
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := pdfapi.WriteContext(d.ctx, &buf); err != nil {
		return nil, fmt.Errorf("failed to write document: %w", err)
	}
	return buf.Bytes(), nil
}

// NormalizeRotation は角度を [0, 360) に丸めます。
func NormalizeRotation(degrees int) int {
	r := degrees % 360
	if r < 0 {
		r += 360
	}
	return r
}
