package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbemstar/image-converter-app/internal/document/pdftest"
	"github.com/cbemstar/image-converter-app/internal/ghostscript"
)

type stubDistiller struct {
	out    []byte
	err    error
	preset ghostscript.Preset
	calls  int
}

func (d *stubDistiller) Distill(ctx context.Context, pdf []byte, preset ghostscript.Preset) ([]byte, error) {
	d.calls++
	d.preset = preset
	return d.out, d.err
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelMedium, "LOW": LevelLow, "medium": LevelMedium, " high ": LevelHigh} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("extreme")
	assert.True(t, IsKind(err, InvalidOption))
}

func TestCompressLevelsKeepPages(t *testing.T) {
	src := Source{Name: "a.pdf", Data: pdftest.Build(pdftest.Page{Rotate: 90}, pdftest.Page{}, pdftest.Page{})}

	for _, level := range []Level{LevelLow, LevelMedium, LevelHigh} {
		res, err := newTestEngine(1).Compress(context.Background(), src, level)
		require.NoError(t, err, level)

		assert.Equal(t, level, res.Level)
		assert.Equal(t, 3, res.Pages)
		assert.Equal(t, len(src.Data), res.OriginalSize)
		assert.Equal(t, len(res.Data), res.OutputSize)
		assert.False(t, res.Distilled)
		assert.Equal(t, []int{90, 0, 0}, rotationsOf(t, res.Data), level)
	}
}

func TestCompressHighUsesSmallerDistilledOutput(t *testing.T) {
	src := Source{Name: "a.pdf", Data: pdftest.Build(pdftest.Pages(2)...)}

	small := &stubDistiller{out: []byte("%PDF-tiny")}
	e := New(Config{Distiller: small})
	res, err := e.Compress(context.Background(), src, LevelHigh)
	require.NoError(t, err)
	assert.True(t, res.Distilled)
	assert.Equal(t, []byte("%PDF-tiny"), res.Data)
	assert.Equal(t, ghostscript.PresetEbook, small.preset)
	assert.Greater(t, res.SavedPercent(), 0.0)

	large := &stubDistiller{out: make([]byte, 1<<20)}
	res, err = New(Config{Distiller: large}).Compress(context.Background(), src, LevelHigh)
	require.NoError(t, err)
	assert.False(t, res.Distilled)
	assert.Equal(t, 1, large.calls)

	// medium では distill しない
	res, err = New(Config{Distiller: small}).Compress(context.Background(), src, LevelMedium)
	require.NoError(t, err)
	assert.False(t, res.Distilled)
	assert.Equal(t, 1, small.calls)
}

func TestCompressDistillerErrors(t *testing.T) {
	src := Source{Name: "a.pdf", Data: pdftest.Build(pdftest.Pages(1)...)}

	res, err := New(Config{Distiller: &stubDistiller{err: ghostscript.ErrNotConfigured}}).Compress(context.Background(), src, LevelHigh)
	require.NoError(t, err)
	assert.False(t, res.Distilled)

	_, err = New(Config{Distiller: &stubDistiller{err: errors.New("gs crashed")}}).Compress(context.Background(), src, LevelHigh)
	assert.True(t, IsKind(err, CorruptDocument))
}

func TestCompressCorrupt(t *testing.T) {
	_, err := newTestEngine(1).Compress(context.Background(), Source{Name: "bad.pdf", Data: []byte("nope")}, LevelLow)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, CorruptDocument, e.Kind)
	assert.Equal(t, "bad.pdf", e.Source)
}
