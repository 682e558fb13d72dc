package pdf

import (
	"context"
	"mime/multipart"
	"os"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

// InspectResult はアップロードされたPDFの基本メタデータを表します。
type InspectResult struct {
	Source    SourceFileMeta    `json:"source"`
	Encrypted bool              `json:"encrypted"`
	Pages     []engine.PageInfo `json:"pages"`
}

// InspectMultipart は単一PDFファイルを受け取り、ページ数とページごとのサイズ・回転角を返します。
func (s *Service) InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if file == nil {
		return nil, newError("INVALID_INPUT", "PDFファイルを選択してください。", nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = removeDir(ws.dir)
	}()

	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0, inputPDF)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(stored.path)
	if err != nil {
		return nil, err
	}

	info, err := s.engine.Inspect(ctx, engine.Source{Name: stored.originalName, Data: data})
	if err != nil {
		return nil, fromEngineError(err)
	}

	return &InspectResult{
		Source:    stored.meta(),
		Encrypted: info.Encrypted,
		Pages:     info.Pages,
	}, nil
}
