// Package pagerange はページ範囲式（例: "1-3,5,8-"）を0始まりのページインデックス列へ変換します。
package pagerange

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrInvalidSegment は範囲式のいずれかのセグメントが不正であることを表します。
var ErrInvalidSegment = errors.New("invalid range segment")

var (
	singlePattern    = regexp.MustCompile(`^\d+$`)
	closedPattern    = regexp.MustCompile(`^(\d+)-(\d+)$`)
	openEndPattern   = regexp.MustCompile(`^(\d+)-$`)
	openStartPattern = regexp.MustCompile(`^-(\d+)$`)
)

// SegmentError は不正なセグメントの文字列と理由を保持します。
type SegmentError struct {
	Segment string
	Reason  string
}

func (e *SegmentError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrInvalidSegment, e.Segment, e.Reason)
}

func (e *SegmentError) Unwrap() error {
	return ErrInvalidSegment
}

// Parse は範囲式を解析し、記述順（セグメント内は昇順）で重複を除いた0始まりのインデックス列を返します。
// 同じページが複数回指定された場合は最初の出現位置のみ残ります。
func Parse(expr string, pageCount int) ([]int, error) {
	indices := make([]int, 0)
	seen := make(map[int]struct{})

	for _, raw := range strings.Split(expr, ",") {
		seg := strings.TrimSpace(raw)
		if seg == "" {
			continue
		}

		start, end, err := bounds(seg, pageCount)
		if err != nil {
			return nil, err
		}

		for p := start; p <= end; p++ {
			idx := p - 1
			if _, dup := seen[idx]; dup {
				continue
			}
			seen[idx] = struct{}{}
			indices = append(indices, idx)
		}
	}

	return indices, nil
}

// bounds はセグメントを1始まりの (start, end) に変換して検証します。
func bounds(seg string, pageCount int) (int, int, error) {
	var (
		start, end int
		err        error
	)

	switch {
	case singlePattern.MatchString(seg):
		start, err = strconv.Atoi(seg)
		end = start
	case closedPattern.MatchString(seg):
		m := closedPattern.FindStringSubmatch(seg)
		if start, err = strconv.Atoi(m[1]); err == nil {
			end, err = strconv.Atoi(m[2])
		}
	case openEndPattern.MatchString(seg):
		m := openEndPattern.FindStringSubmatch(seg)
		start, err = strconv.Atoi(m[1])
		end = pageCount
	case openStartPattern.MatchString(seg):
		m := openStartPattern.FindStringSubmatch(seg)
		start = 1
		end, err = strconv.Atoi(m[1])
	default:
		return 0, 0, &SegmentError{Segment: seg, Reason: "malformed segment"}
	}
	if err != nil {
		return 0, 0, &SegmentError{Segment: seg, Reason: "page number is too large"}
	}

	switch {
	case start < 1:
		return 0, 0, &SegmentError{Segment: seg, Reason: "page numbers start at 1"}
	case end > pageCount:
		return 0, 0, &SegmentError{Segment: seg, Reason: fmt.Sprintf("document has %d pages", pageCount)}
	case start > end:
		return 0, 0, &SegmentError{Segment: seg, Reason: "start is greater than end"}
	}
	return start, end, nil
}

// Format は0始まりのインデックス列を1始まりの範囲式に戻します。連続するページは "N-M" にまとめます。
func Format(indices []int) string {
	if len(indices) == 0 {
		return ""
	}

	var b strings.Builder
	runStart := indices[0]
	prev := indices[0]

	flush := func() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		if runStart == prev {
			b.WriteString(strconv.Itoa(runStart + 1))
			return
		}
		fmt.Fprintf(&b, "%d-%d", runStart+1, prev+1)
	}

	for _, idx := range indices[1:] {
		if idx == prev+1 {
			prev = idx
			continue
		}
		flush()
		runStart, prev = idx, idx
	}
	flush()

	return b.String()
}
