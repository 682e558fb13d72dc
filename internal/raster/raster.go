package raster

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"math"

	"github.com/chai2010/webp"
	"golang.org/x/image/draw"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Renderer はPDFの1ページを指定DPIで画像化します。
type Renderer interface {
	RenderPage(ctx context.Context, pdf []byte, page int, dpi int) (image.Image, error)
}

// ErrNoRenderer はページ描画用の Renderer が設定されていないことを表します。
var ErrNoRenderer = errors.New("no page renderer configured")

// Rasterizer はページ描画とエンコードをまとめます。
type Rasterizer struct {
	renderer Renderer
}

// New は renderer を使う Rasterizer を返します。renderer が nil の場合はページ描画のみ失敗します。
func New(renderer Renderer) *Rasterizer {
	return &Rasterizer{renderer: renderer}
}

// RasterizePage はPDFの0始まりページ page を描画し、opts の形式でエンコードしたバイト列を返します。
func (r *Rasterizer) RasterizePage(ctx context.Context, pdf []byte, page int, opts Options) ([]byte, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if r == nil || r.renderer == nil {
		return nil, ErrNoRenderer
	}

	img, err := r.renderer.RenderPage(ctx, pdf, page, opts.DPI)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := Encode(&buf, img, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RasterizeImage はメモリ上の画像サーフェスを 1px = 1pt とみなし、dpi/72 倍に再サンプリングしてエンコードします。
func (r *Rasterizer) RasterizeImage(img image.Image, opts Options) ([]byte, error) {
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	scaled := Resample(img, Scale(opts.DPI))

	var buf bytes.Buffer
	if err := Encode(&buf, scaled, opts); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Resample は画像を scale 倍に CatmullRom 補間で拡大・縮小します。各辺は最低1pxです。
func Resample(img image.Image, scale float64) image.Image {
	if scale == 1 || scale <= 0 {
		return img
	}

	src := img.Bounds()
	w := int(math.Round(float64(src.Dx()) * scale))
	h := int(math.Round(float64(src.Dy()) * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Over, nil)
	return dst
}

// Encode は画像を opts.Format でエンコードします。
func Encode(w io.Writer, img image.Image, opts Options) error {
	opts = opts.Normalize()

	switch opts.Format {
	case PNG:
		return png.Encode(w, img)
	case JPEG:
		return jpeg.Encode(w, flatten(img), &jpeg.Options{Quality: opts.Quality})
	case WebP:
		return webp.Encode(w, img, &webp.Options{Quality: float32(opts.Quality)})
	case SVG:
		return encodeSVG(w, img)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, opts.Format)
	}
}

// flatten は透過部分を白で塗りつぶします（JPEG はアルファを持たないため）。
func flatten(img image.Image) image.Image {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}

func encodeSVG(w io.Writer, img image.Image) error {
	var pngBuf bytes.Buffer
	if err := png.Encode(&pngBuf, img); err != nil {
		return err
	}

	b := img.Bounds()
	_, err := fmt.Fprintf(w,
		`<svg xmlns="http://www.w3.org/2000/svg" xmlns:xlink="http://www.w3.org/1999/xlink" width="%d" height="%d" viewBox="0 0 %d %d"><image width="%d" height="%d" xlink:href="data:image/png;base64,%s"/></svg>`,
		b.Dx(), b.Dy(), b.Dx(), b.Dy(), b.Dx(), b.Dy(),
		base64.StdEncoding.EncodeToString(pngBuf.Bytes()),
	)
	return err
}

// Decode は PNG/JPEG/GIF/WebP/BMP/TIFF をデコードし、検出した形式名とともに返します。
func Decode(data []byte) (image.Image, string, error) {
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return img, name, nil
}
