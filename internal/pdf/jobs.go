package pdf

import (
	"context"
	"fmt"
)

// RunJob はジョブIDに対応する処理を実行します。失敗した場合は作業ディレクトリを削除します。
func (s *Service) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ws, err := s.workspaceFor(jobID)
	if err != nil {
		return nil, err
	}
	manifest, err := loadManifest(ws)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}
	if manifest.Operation == "" {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("manifest missing operation")
	}

	stored := manifest.inputs(ws)
	if len(stored) == 0 {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("manifest has no input files")
	}

	var (
		result *Result
		runErr error
	)

	switch manifest.Operation {
	case OperationAssemble:
		result, runErr = s.executeAssemble(ctx, ws, stored, manifest, reporter)
	case OperationSplit:
		result, runErr = s.executeSplit(ctx, ws, stored, manifest, reporter)
	case OperationToImages:
		result, runErr = s.executeToImages(ctx, ws, stored, manifest, reporter)
	case OperationFromImages:
		result, runErr = s.executeFromImages(ctx, ws, stored, reporter)
	case OperationRasterize:
		result, runErr = s.executeRasterize(ctx, ws, stored[0], manifest, reporter)
	case OperationCompress:
		result, runErr = s.executeCompress(ctx, ws, stored[0], manifest, reporter)
	default:
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("unsupported operation: %s", manifest.Operation)
	}

	if runErr != nil {
		if cleanupErr := removeDir(ws.dir); cleanupErr != nil {
			runErr = fmt.Errorf("%w (ワークスペースの削除にも失敗しました: %v)", runErr, cleanupErr)
		}
		return nil, runErr
	}

	return result, nil
}
