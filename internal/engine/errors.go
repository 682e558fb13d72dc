package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Kind はエンジンが返すエラーの種別です。
type Kind string

const (
	InvalidRangeSegment Kind = "InvalidRangeSegment"
	InvalidDeleteIndex  Kind = "InvalidDeleteIndex"
	InvalidReorderIndex Kind = "InvalidReorderIndex"
	UnsupportedFormat   Kind = "UnsupportedFormat"
	CorruptDocument     Kind = "CorruptDocument"
	PasswordRequired    Kind = "PasswordRequired"
	InvalidOption       Kind = "InvalidOption"
)

// Error は呼び出し側が具体的なメッセージを組み立てられるよう、原因となったセグメント・インデックス・ファイル名を保持します。
type Error struct {
	Kind    Kind
	Source  string
	Segment string
	Index   int
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Source != "" {
		fmt.Fprintf(&b, " (source %q)", e.Source)
	}
	switch e.Kind {
	case InvalidRangeSegment:
		fmt.Fprintf(&b, ": segment %q", e.Segment)
	case InvalidDeleteIndex, InvalidReorderIndex:
		fmt.Fprintf(&b, ": index %d", e.Index)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind は err の連鎖に種別 kind の *Error が含まれるかを返します。
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// withSource は Source が未設定の *Error にファイル名を補います。
func withSource(err error, source string) error {
	var e *Error
	if errors.As(err, &e) && e.Source == "" {
		e.Source = source
	}
	return err
}

// ItemError はバッチ処理で1件分の失敗を表します。Page は1始まりで、ファイル単位の失敗では0です。
type ItemError struct {
	Source string `json:"source"`
	Page   int    `json:"page,omitempty"`
	Err    error  `json:"-"`
}

func (e ItemError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("%s page %d: %v", e.Source, e.Page, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Source, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
