package pagerange

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		expr  string
		pages int
		want  []int
	}{
		{name: "closed and single", expr: "1-3,5", pages: 5, want: []int{0, 1, 2, 4}},
		{name: "open start", expr: "-2", pages: 5, want: []int{0, 1}},
		{name: "open end", expr: "4-", pages: 5, want: []int{3, 4}},
		{name: "dedup keeps first occurrence", expr: "1,1-2", pages: 5, want: []int{0, 1}},
		{name: "segment order is kept", expr: "3,1-2", pages: 5, want: []int{2, 0, 1}},
		{name: "whitespace and empty segments", expr: " 2 , ,4 ,", pages: 5, want: []int{1, 3}},
		{name: "empty expression", expr: "", pages: 5, want: []int{}},
		{name: "single page document", expr: "1-", pages: 1, want: []int{0}},
		{name: "overlap later segment", expr: "4-5,1-", pages: 5, want: []int{3, 4, 0, 1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expr, tt.pages)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		segment string
	}{
		{name: "beyond page count", expr: "6", segment: "6"},
		{name: "start greater than end", expr: "3-1", segment: "3-1"},
		{name: "zero page", expr: "0-2", segment: "0-2"},
		{name: "open end beyond count", expr: "1,7-", segment: "7-"},
		{name: "letters", expr: "1,a", segment: "a"},
		{name: "double dash", expr: "1--3", segment: "1--3"},
		{name: "inner spaces", expr: "1 - 3", segment: "1 - 3"},
		{name: "overflow", expr: "99999999999999999999999", segment: "99999999999999999999999"},
		{name: "negative open start beyond", expr: "-9", segment: "-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expr, 5)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidSegment))

			var segErr *SegmentError
			require.ErrorAs(t, err, &segErr)
			assert.Equal(t, tt.segment, segErr.Segment)
		})
	}
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "", Format(nil))
	assert.Equal(t, "1-3,5", Format([]int{0, 1, 2, 4}))
	assert.Equal(t, "3,1-2", Format([]int{2, 0, 1}))
	assert.Equal(t, "7", Format([]int{6}))
}
