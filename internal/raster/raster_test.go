package raster

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRenderer struct {
	gotPage int
	gotDPI  int
	err     error
}

func (f *fakeRenderer) RenderPage(ctx context.Context, pdf []byte, page int, dpi int) (image.Image, error) {
	f.gotPage, f.gotDPI = page, dpi
	if f.err != nil {
		return nil, f.err
	}
	// 1pt x 1pt の Letter ページを dpi で描画した想定のサイズ
	w := 612 * dpi / BaseDPI
	h := 792 * dpi / BaseDPI
	return image.NewRGBA(image.Rect(0, 0, w, h)), nil
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 10, A: 255})
		}
	}
	return img
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"": PNG, "PNG": PNG, "jpg": JPEG, "jpeg": JPEG, " webp ": WebP, "svg": SVG}
	for in, want := range tests {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("gif")
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatMetadata(t *testing.T) {
	assert.Equal(t, "jpg", JPEG.Extension())
	assert.Equal(t, "png", PNG.Extension())
	assert.Equal(t, "image/webp", WebP.MIMEType())
	assert.Equal(t, "image/svg+xml", SVG.MIMEType())
}

func TestOptionsValidate(t *testing.T) {
	require.NoError(t, Options{}.Normalize().Validate())
	require.NoError(t, Options{Format: JPEG, DPI: 300, Quality: 80}.Validate())

	err := Options{Format: "tiff", DPI: 72}.Validate()
	require.ErrorIs(t, err, ErrUnsupportedFormat)

	err = Options{Format: PNG, DPI: 5000}.Validate()
	require.ErrorIs(t, err, ErrInvalidOptions)
}

func TestScale(t *testing.T) {
	assert.Equal(t, 1.0, Scale(72))
	assert.Equal(t, 2.0, Scale(144))
	assert.Equal(t, 1.0, Scale(0))
}

func TestRasterizePage(t *testing.T) {
	renderer := &fakeRenderer{}
	r := New(renderer)

	data, err := r.RasterizePage(context.Background(), []byte("%PDF"), 2, Options{Format: PNG, DPI: 144})
	require.NoError(t, err)
	assert.Equal(t, 2, renderer.gotPage)
	assert.Equal(t, 144, renderer.gotDPI)

	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 1224, cfg.Width)
	assert.Equal(t, 1584, cfg.Height)
}

func TestRasterizePageErrors(t *testing.T) {
	_, err := New(nil).RasterizePage(context.Background(), nil, 0, Options{})
	require.ErrorIs(t, err, ErrNoRenderer)

	boom := errors.New("boom")
	_, err = New(&fakeRenderer{err: boom}).RasterizePage(context.Background(), nil, 0, Options{})
	require.ErrorIs(t, err, boom)

	_, err = New(&fakeRenderer{}).RasterizePage(context.Background(), nil, 0, Options{Format: "bmp"})
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestRasterizeImageScalesByDPI(t *testing.T) {
	r := New(nil)

	data, err := r.RasterizeImage(solid(40, 20), Options{Format: JPEG, DPI: 36})
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Width)
	assert.Equal(t, 10, cfg.Height)
}

func TestEncodeSVGWrapsPNG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, solid(3, 2), Options{Format: SVG}))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "<svg"))
	assert.Contains(t, out, `width="3" height="2"`)
	assert.Contains(t, out, "data:image/png;base64,")
}

func TestEncodeWebP(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, solid(8, 8), Options{Format: WebP}))

	img, name, err := Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "webp", name)
	assert.Equal(t, 8, img.Bounds().Dx())
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, err := Decode([]byte("not an image"))
	require.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestResampleMinimumSize(t *testing.T) {
	out := Resample(solid(2, 2), 0.1)
	assert.Equal(t, 1, out.Bounds().Dx())
	assert.Equal(t, 1, out.Bounds().Dy())
}
