package pdf

import (
	"errors"
	"fmt"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

// Error はAPIレスポンスに載せるエラーコードとメッセージを保持します。
type Error struct {
	Code    string
	Message string
	Err     error
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// fromEngineError はエンジンの種別付きエラーを、原因の箇所（範囲の断片・位置・ファイル名）を含むAPIエラーに変換します。
// それ以外のエラーはそのまま返します。
func fromEngineError(err error) error {
	var e *engine.Error
	if !errors.As(err, &e) {
		return err
	}
	code, message := describe(e)
	return newError(code, message, err)
}

func describe(e *engine.Error) (string, string) {
	prefix := ""
	if e.Source != "" {
		prefix = fmt.Sprintf("%s: ", e.Source)
	}

	switch e.Kind {
	case engine.InvalidRangeSegment:
		return "INVALID_RANGE", fmt.Sprintf("%sページ範囲「%s」が不正です。", prefix, e.Segment)
	case engine.InvalidDeleteIndex:
		return "INVALID_DELETE_INDEX", fmt.Sprintf("%s削除位置 %d は選択されたページ数の範囲外です。", prefix, e.Index)
	case engine.InvalidReorderIndex:
		return "INVALID_REORDER_INDEX", fmt.Sprintf("%s並べ替え位置 %d は残りのページ数の範囲外です。", prefix, e.Index)
	case engine.UnsupportedFormat:
		return "UNSUPPORTED_FORMAT", fmt.Sprintf("%s対応していない形式です。", prefix)
	case engine.CorruptDocument:
		return "UNSUPPORTED_PDF", fmt.Sprintf("%sPDFを読み込めませんでした。ファイルが破損していないか確認してください。", prefix)
	case engine.PasswordRequired:
		return "PASSWORD_REQUIRED", fmt.Sprintf("%sパスワードが必要か、パスワードが正しくありません。", prefix)
	default:
		if e.Err == nil {
			return "INVALID_INPUT", fmt.Sprintf("%s指定内容が不正です。", prefix)
		}
		return "INVALID_INPUT", fmt.Sprintf("%s%v", prefix, e.Err)
	}
}

// ItemFailure はバッチ処理で失敗した1件分の情報です。
type ItemFailure struct {
	Source  string `json:"source"`
	Page    int    `json:"page,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func itemFailures(errs []engine.ItemError) []ItemFailure {
	if len(errs) == 0 {
		return nil
	}
	out := make([]ItemFailure, len(errs))
	for i, itemErr := range errs {
		failure := ItemFailure{Source: itemErr.Source, Page: itemErr.Page, Code: "INTERNAL_ERROR", Message: itemErr.Error()}
		var apiErr *Error
		if errors.As(fromEngineError(itemErr.Err), &apiErr) {
			failure.Code = apiErr.Code
			failure.Message = apiErr.Message
		}
		out[i] = failure
	}
	return out
}
