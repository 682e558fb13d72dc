// Package jobs は変換ジョブを Asynq で非同期実行し、状態を Redis に保存します。
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/cbemstar/image-converter-app/internal/pdf"
)

// Runner はジョブを実行するサービスです。pdf.Service が実装します。
type Runner interface {
	RunJob(ctx context.Context, jobID string, reporter pdf.ProgressReporter) (*pdf.Result, error)
}

func (m *Manager) handleConvertTask(ctx context.Context, task *asynq.Task) error {
	var payload TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid task payload: %v: %w", err, asynq.SkipRetry)
	}
	return m.process(ctx, payload)
}

// process はジョブを実行し、結果または失敗理由をストアに記録します。
// 記録に成功した失敗ジョブはリトライしません（作業ディレクトリは既に削除されています）。
func (m *Manager) process(ctx context.Context, payload TaskPayload) error {
	if payload.JobID == "" {
		return fmt.Errorf("missing jobId in payload: %w", asynq.SkipRetry)
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:     payload.JobID,
		Operation: payload.Operation,
		Status:    StatusRunning,
		Progress: ProgressInfo{
			Percent: 0,
			Stage:   "load",
		},
	}); err != nil {
		return err
	}

	result, err := m.runner.RunJob(ctx, payload.JobID, func(stage string, percent int) {
		m.UpdateProgress(ctx, payload.JobID, percent, stage)
	})
	if err != nil {
		m.logf("job failed job=%s op=%s: %v", payload.JobID, payload.Operation, err)
		return m.failJobWithError(ctx, payload.JobID, err)
	}
	return m.finishJob(ctx, payload.JobID, result)
}

func (m *Manager) finishJob(ctx context.Context, jobID string, result *pdf.Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	downloadURL := m.buildDownloadURL(result)
	return m.store.MarkDone(ctx, jobID, downloadURL, result.Meta)
}

func (m *Manager) failJob(ctx context.Context, jobID, code, message string) error {
	return m.store.MarkFailed(ctx, jobID, &ErrorInfo{
		Code:    code,
		Message: message,
	})
}

func (m *Manager) failJobWithError(ctx context.Context, jobID string, err error) error {
	// キャンセルされたジョブでも失敗状態は記録する
	ctx = context.WithoutCancel(ctx)
	var apiErr *pdf.Error
	switch {
	case errors.As(err, &apiErr):
		return m.failJob(ctx, jobID, apiErr.Code, apiErr.Message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return m.failJob(ctx, jobID, "REQUEST_CANCELED", "ジョブがキャンセルされました。")
	default:
		return m.failJob(ctx, jobID, "INTERNAL_ERROR", "サーバー内部でエラーが発生しました。")
	}
}

func (m *Manager) buildDownloadURL(result *pdf.Result) string {
	base := m.cfg.JobResultBaseURL
	if base == "" {
		return fmt.Sprintf("/api/jobs/%s/download", result.JobID)
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimRight(base, "/"), result.JobID, url.PathEscape(result.OutputFilename))
}
