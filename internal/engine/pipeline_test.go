package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDeletes(t *testing.T) {
	list := []int{0, 1, 2, 3, 4}

	got, err := applyDeletes(list, []int{1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, got)

	// 位置は削除前の列を基準にするため、順序や重複に依存しない
	got, err = applyDeletes(list, []int{3, 1, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 4}, got)

	got, err = applyDeletes(list, nil)
	require.NoError(t, err)
	assert.Equal(t, list, got)
	got[0] = 99
	assert.Equal(t, 0, list[0])
}

func TestApplyDeletesOutOfBounds(t *testing.T) {
	for _, pos := range []int{5, 6, -1} {
		_, err := applyDeletes([]int{0, 1, 2, 3, 4}, []int{0, pos})
		require.Error(t, err)

		var e *Error
		require.ErrorAs(t, err, &e)
		assert.Equal(t, InvalidDeleteIndex, e.Kind)
		assert.Equal(t, pos, e.Index)
	}
}

func TestApplyReorder(t *testing.T) {
	got, err := applyReorder([]int{0, 2, 4}, []int{2, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{4, 0}, got)

	got, err = applyReorder([]int{7, 8}, []int{1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{8, 8, 7}, got)

	got, err = applyReorder([]int{7, 8}, nil)
	require.NoError(t, err)
	assert.Equal(t, []int{7, 8}, got)
}

func TestApplyReorderOutOfBounds(t *testing.T) {
	_, err := applyReorder([]int{0, 2, 4}, []int{3})
	require.Error(t, err)
	assert.True(t, IsKind(err, InvalidReorderIndex))

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 3, e.Index)
}

func TestRotationAt(t *testing.T) {
	rots := []*int{nil, Rotations(90)[0]}

	_, ok := rotationAt(rots, 0)
	assert.False(t, ok)

	deg, ok := rotationAt(rots, 1)
	assert.True(t, ok)
	assert.Equal(t, 90, deg)

	_, ok = rotationAt(rots, 2)
	assert.False(t, ok)
}

func TestSelectPages(t *testing.T) {
	got, err := selectPages("", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, got)

	got, err = selectPages("2-", 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, got)

	_, err = selectPages("1,4", 3)
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, InvalidRangeSegment, e.Kind)
	assert.Equal(t, "4", e.Segment)
}
