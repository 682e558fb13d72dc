package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cbemstar/image-converter-app/internal/document/pdftest"
)

func TestAssembleTwoSourcesWithRotations(t *testing.T) {
	e := newTestEngine(1)

	out, err := e.Assemble(context.Background(), Request{Sources: []AssemblySource{
		{
			Source: Source{Name: "first.pdf", Data: pdftest.Build(pdftest.Pages(3)...)},
			Spec:   EditSpec{Range: "1-2", Rotations: Rotations(90, 0)},
		},
		{
			Source: Source{Name: "second.pdf", Data: pdftest.Build(pdftest.Pages(2)...)},
			Spec:   EditSpec{Range: "2", Rotations: Rotations(180)},
		},
	}})
	require.NoError(t, err)

	assert.Equal(t, 3, out.Pages)
	assert.Equal(t, []int{90, 0, 180}, rotationsOf(t, out.Data))
	require.Len(t, out.Sources, 2)
	assert.Equal(t, []int{0, 1}, out.Sources[0].Selected)
	assert.Equal(t, []int{1}, out.Sources[1].Selected)
	assert.Equal(t, 2, out.Sources[1].SourcePages)
}

func TestAssembleIdentity(t *testing.T) {
	e := newTestEngine(1)
	src := pdftest.Build(
		pdftest.Page{Rotate: 90},
		pdftest.Page{},
		pdftest.Page{Rotate: 270, Width: 300, Height: 400},
	)

	for _, expr := range []string{"", "1-3", "1-", "-3"} {
		out, err := e.Assemble(context.Background(), Request{Sources: []AssemblySource{
			{Source: Source{Name: "in.pdf", Data: src}, Spec: EditSpec{Range: expr}},
		}})
		require.NoError(t, err, expr)
		assert.Equal(t, 3, out.Pages, expr)
		assert.Equal(t, []int{90, 0, 270}, rotationsOf(t, out.Data), expr)

		w, h, err := openPDF(t, out.Data).PageSize(2)
		require.NoError(t, err)
		assert.InDelta(t, 300, w, 0.01)
		assert.InDelta(t, 400, h, 0.01)
	}
}

func TestAssembleDeleteThenReorder(t *testing.T) {
	e := newTestEngine(1)
	// 回転角でページを識別する: p0=0, p1=90, p2=180, p3=270, p4=90
	src := pdftest.Build(
		pdftest.Page{},
		pdftest.Page{Rotate: 90},
		pdftest.Page{Rotate: 180},
		pdftest.Page{Rotate: 270},
		pdftest.Page{Rotate: 90},
	)

	out, err := e.Assemble(context.Background(), Request{Sources: []AssemblySource{{
		Source: Source{Name: "five.pdf", Data: src},
		Spec:   EditSpec{Range: "1-5", Deletes: []int{1, 3}, Reorder: []int{2, 0}},
	}}})
	require.NoError(t, err)

	assert.Equal(t, []int{4, 0}, out.Sources[0].Selected)
	assert.Equal(t, []int{90, 0}, rotationsOf(t, out.Data))
}

func TestAssembleRotationOverridesInherited(t *testing.T) {
	e := newTestEngine(1)
	src := pdftest.Build(pdftest.Page{Rotate: 90}, pdftest.Page{Rotate: 90})

	out, err := e.Assemble(context.Background(), Request{Sources: []AssemblySource{{
		Source: Source{Name: "r.pdf", Data: src},
		Spec:   EditSpec{Rotations: []*int{nil, Rotations(-90)[0], Rotations(180)[0]}},
	}}})
	require.NoError(t, err)

	// nil は元の回転を維持し、余分な指定は無視される
	assert.Equal(t, []int{90, 270}, rotationsOf(t, out.Data))
}

func TestAssembleRepeatedReorderPositions(t *testing.T) {
	e := newTestEngine(1)

	out, err := e.Assemble(context.Background(), Request{Sources: []AssemblySource{{
		Source: Source{Name: "dup.pdf", Data: pdftest.Build(pdftest.Pages(2)...)},
		Spec:   EditSpec{Reorder: []int{1, 1}, Rotations: Rotations(90, 0)},
	}}})
	require.NoError(t, err)

	assert.Equal(t, []int{90, 0}, rotationsOf(t, out.Data))
}

func TestAssembleErrors(t *testing.T) {
	three := pdftest.Build(pdftest.Pages(3)...)

	tests := map[string]struct {
		sources []AssemblySource
		kind    Kind
		source  string
	}{
		"range out of bounds": {
			sources: []AssemblySource{{Source: Source{Name: "a.pdf", Data: three}, Spec: EditSpec{Range: "2-4"}}},
			kind:    InvalidRangeSegment,
			source:  "a.pdf",
		},
		"delete out of bounds": {
			sources: []AssemblySource{{Source: Source{Name: "a.pdf", Data: three}, Spec: EditSpec{Range: "1-2", Deletes: []int{2}}}},
			kind:    InvalidDeleteIndex,
			source:  "a.pdf",
		},
		"reorder resolved after deletes": {
			sources: []AssemblySource{{Source: Source{Name: "a.pdf", Data: three}, Spec: EditSpec{Deletes: []int{0}, Reorder: []int{2}}}},
			kind:    InvalidReorderIndex,
			source:  "a.pdf",
		},
		"corrupt second source": {
			sources: []AssemblySource{
				{Source: Source{Name: "a.pdf", Data: three}},
				{Source: Source{Name: "b.pdf", Data: []byte("garbage")}},
			},
			kind:   CorruptDocument,
			source: "b.pdf",
		},
		"everything deleted": {
			sources: []AssemblySource{{Source: Source{Name: "a.pdf", Data: three}, Spec: EditSpec{Range: "1", Deletes: []int{0}}}},
			kind:    InvalidOption,
		},
		"no sources": {
			kind: InvalidOption,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			out, err := newTestEngine(1).Assemble(context.Background(), Request{Sources: tc.sources})
			require.Error(t, err)
			assert.Nil(t, out)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tc.kind, e.Kind)
			assert.Equal(t, tc.source, e.Source)
		})
	}
}

func TestAssembleReportsProgress(t *testing.T) {
	var seen []Progress
	_, err := newTestEngine(1).Assemble(context.Background(), Request{
		Sources: []AssemblySource{
			{Source: Source{Name: "a.pdf", Data: pdftest.Build(pdftest.Pages(1)...)}},
			{Source: Source{Name: "b.pdf", Data: pdftest.Build(pdftest.Pages(1)...)}},
		},
		Progress: func(p Progress) { seen = append(seen, p) },
	})
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.InDelta(t, 1.0, seen[1].Fraction(), 1e-9)
}

func TestAssembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestEngine(1).Assemble(ctx, Request{Sources: []AssemblySource{
		{Source: Source{Name: "a.pdf", Data: pdftest.Build(pdftest.Pages(1)...)}},
	}})
	require.ErrorIs(t, err, context.Canceled)
}
