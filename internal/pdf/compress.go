package pdf

import (
	"context"
	"mime/multipart"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

const compressedFilename = "compressed.pdf"

// PrepareCompressJob は入力を保存し、圧縮ジョブのマニフェストを作成します。
func (s *Service) PrepareCompressJob(ctx context.Context, file *multipart.FileHeader, level string) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	parsed, err := engine.ParseLevel(level)
	if err != nil {
		return nil, newError("INVALID_INPUT", "level には low / medium / high のいずれかを指定してください。", err)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0, inputPDF)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	return s.saveManifest(ws, &JobManifest{
		Operation: OperationCompress,
		Level:     parsed,
	}, []storedFile{stored})
}

func (s *Service) executeCompress(ctx context.Context, ws workspace, stored storedFile, manifest *JobManifest, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, "load", 10)
	sources, err := loadSources([]storedFile{stored}, nil)
	if err != nil {
		return nil, err
	}

	reportProgress(progress, "process", 40)
	res, err := s.engine.Compress(ctx, sources[0], manifest.Level)
	if err != nil {
		return nil, fromEngineError(err)
	}

	return s.finish(ws, OperationCompress, output{
		filename: compressedFilename,
		kind:     ResultKindPDF,
		data:     res.Data,
		meta: &CompressMeta{
			OriginalSize: stored.size,
			OutputSize:   int64(res.OutputSize),
			SavedBytes:   stored.size - int64(res.OutputSize),
			SavedPercent: res.SavedPercent(),
			Level:        res.Level,
			Distilled:    res.Distilled,
			Source:       stored.meta(),
		},
	}, progress)
}
