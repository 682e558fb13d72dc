package pdf

import "github.com/cbemstar/image-converter-app/internal/engine"

// ProgressReporter は進捗更新用コールバックです。
type ProgressReporter func(stage string, percent int)

func reportProgress(cb ProgressReporter, stage string, percent int) {
	if cb == nil {
		return
	}
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	cb(stage, percent)
}

// 進捗の配分: load 0-20%, process 20-80%, write 80-100%
const (
	processStart = 20
	processSpan  = 60
)

// engineProgress はエンジンの進捗を process 段階の割合に変換します。
func engineProgress(cb ProgressReporter) engine.ProgressFunc {
	if cb == nil {
		return nil
	}
	return func(p engine.Progress) {
		reportProgress(cb, "process", processStart+int(float64(processSpan)*p.Fraction()))
	}
}
