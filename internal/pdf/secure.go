package pdf

import (
	"context"
	"mime/multipart"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

const (
	securedFilename   = "protected.pdf"
	unsecuredFilename = "unlocked.pdf"
)

// SecureParams はパスワード設定・解除の指定です。
type SecureParams struct {
	Password        string
	CurrentPassword string
	RemovePassword  bool
}

// SecureMultipart はパスワードを設定または解除したPDFを同期で作成します。
// パスワードをディスクに残さないため、非同期ジョブにはしません（マニフェストも作成しません）。
func (s *Service) SecureMultipart(ctx context.Context, file *multipart.FileHeader, params SecureParams) (_ *Result, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !params.RemovePassword && params.Password == "" {
		return nil, newError("INVALID_INPUT", "設定するパスワードを入力してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = removeDir(ws.dir)
		}
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0, inputProtectedPDF)
	if err != nil {
		return nil, err
	}
	sources, err := loadSources([]storedFile{stored}, nil)
	if err != nil {
		return nil, err
	}

	data, err := s.engine.Secure(ctx, sources[0], engine.SecureOptions{
		Password:        params.Password,
		CurrentPassword: params.CurrentPassword,
		RemovePassword:  params.RemovePassword,
	})
	if err != nil {
		return nil, fromEngineError(err)
	}

	filename := securedFilename
	if params.RemovePassword {
		filename = unsecuredFilename
	}
	return s.finish(ws, OperationSecure, output{
		filename: filename,
		kind:     ResultKindPDF,
		data:     data,
		meta:     &SecureMeta{Protected: !params.RemovePassword, Source: stored.meta()},
	}, nil)
}
