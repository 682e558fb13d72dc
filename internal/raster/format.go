// Package raster はページや画像サーフェスを指定DPI・形式のラスター画像へ変換します。
package raster

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Format は出力画像の形式です。
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	WebP Format = "webp"
	SVG  Format = "svg"
)

const (
	// BaseDPI は PDF のユーザー空間単位（1pt = 1/72 inch）に対応する基準DPIです。
	BaseDPI        = 72
	DefaultDPI     = 72
	MaxDPI         = 1200
	DefaultQuality = 90
)

var (
	// ErrUnsupportedFormat は未対応の画像形式が指定されたことを表します。
	ErrUnsupportedFormat = errors.New("unsupported image format")
	// ErrInvalidOptions は DPI や品質の指定が範囲外であることを表します。
	ErrInvalidOptions = errors.New("invalid raster options")
)

var validate = validator.New()

// ParseFormat は "png" "jpg" "jpeg" "webp" "svg" を受け付けます。空文字は PNG とみなします。
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	case "svg":
		return SVG, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, s)
	}
}

// Extension はファイル名に使う拡張子（ドットなし）を返します。
func (f Format) Extension() string {
	if f == JPEG {
		return "jpg"
	}
	return string(f)
}

// MIMEType は形式に対応する MIME タイプを返します。
func (f Format) MIMEType() string {
	switch f {
	case PNG:
		return "image/png"
	case JPEG:
		return "image/jpeg"
	case WebP:
		return "image/webp"
	case SVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Options はラスタライズの出力設定です。
type Options struct {
	Format  Format `json:"format" validate:"required,oneof=png jpeg webp svg"`
	DPI     int    `json:"dpi" validate:"min=0,max=1200"`
	Quality int    `json:"quality" validate:"min=0,max=100"`
}

// Normalize は未指定の項目に既定値を入れた Options を返します。
func (o Options) Normalize() Options {
	if o.Format == "" {
		o.Format = PNG
	}
	if o.DPI == 0 {
		o.DPI = DefaultDPI
	}
	if o.Quality == 0 {
		o.Quality = DefaultQuality
	}
	return o
}

// Validate は Options の値域を検証します。
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Field() == "Format" {
				return fmt.Errorf("%w: %s", ErrUnsupportedFormat, o.Format)
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidOptions, err)
}

// Scale は基準DPIに対する拡大率を返します。0以下は既定DPIとして扱います。
func Scale(dpi int) float64 {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	return float64(dpi) / BaseDPI
}
