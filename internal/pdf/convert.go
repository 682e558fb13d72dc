package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/cbemstar/image-converter-app/internal/engine"
	"github.com/cbemstar/image-converter-app/internal/raster"
)

const fromImagesFilename = "images.pdf"

// PrepareFromImagesJob は画像を保存し、画像→PDF変換ジョブのマニフェストを作成します。
func (s *Service) PrepareFromImagesJob(ctx context.Context, files []*multipart.FileHeader) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeMultipartFiles(ctx, files, ws.inDir, inputImage)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	return s.saveManifest(ws, &JobManifest{Operation: OperationFromImages}, stored)
}

func (s *Service) executeFromImages(ctx context.Context, ws workspace, stored []storedFile, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, "load", 10)
	images := make([]engine.ImageInput, len(stored))
	for i, sf := range stored {
		data, err := os.ReadFile(sf.path)
		if err != nil {
			return nil, fmt.Errorf("入力ファイルの読み込みに失敗しました: %w", err)
		}
		images[i] = engine.ImageInput{Name: sf.originalName, Data: data, MIMEType: sf.mimeType}
	}

	res, err := s.engine.ImagesToDocument(ctx, images, engineProgress(progress))
	if err != nil {
		return nil, fromEngineError(err)
	}
	if res.Pages == 0 {
		return nil, batchFailure(res.Errors)
	}

	return s.finish(ws, OperationFromImages, output{
		filename: fromImagesFilename,
		kind:     ResultKindPDF,
		data:     res.Document,
		meta: &FromImagesMeta{
			Pages:    res.Pages,
			Failures: itemFailures(res.Errors),
			Sources:  sourceMetas(stored),
		},
	}, progress)
}

// PrepareRasterizeJob は画像1枚を保存し、DPI・形式を変えて書き出すジョブのマニフェストを作成します。
// 元画像の1pxを1ptとみなし、dpi/72 倍に拡大縮小します。
func (s *Service) PrepareRasterizeJob(ctx context.Context, file *multipart.FileHeader, params RasterParams) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.rasterOptions(params); err != nil {
		return nil, err
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeMultipartFile(ctx, file, ws.inDir, 0, inputImage)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	return s.saveManifest(ws, &JobManifest{
		Operation: OperationRasterize,
		Format:    params.Format,
		DPI:       params.DPI,
		Quality:   params.Quality,
	}, []storedFile{stored})
}

func (s *Service) executeRasterize(ctx context.Context, ws workspace, stored storedFile, manifest *JobManifest, progress ProgressReporter) (*Result, error) {
	opts, err := s.rasterOptions(RasterParams{Format: manifest.Format, DPI: manifest.DPI, Quality: manifest.Quality})
	if err != nil {
		return nil, err
	}

	reportProgress(progress, "load", 10)
	data, err := os.ReadFile(stored.path)
	if err != nil {
		return nil, fmt.Errorf("入力ファイルの読み込みに失敗しました: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, _, err := raster.Decode(data)
	if err != nil {
		return nil, newError("UNSUPPORTED_FORMAT", fmt.Sprintf("%s: 画像を読み込めませんでした。", stored.originalName), err)
	}
	reportProgress(progress, "process", 40)

	out, err := s.engine.Rasterizer().RasterizeImage(img, opts)
	if err != nil {
		return nil, newError("UNSUPPORTED_FORMAT", fmt.Sprintf("%s: 画像の変換に失敗しました。", stored.originalName), err)
	}

	stem := strings.TrimSuffix(stored.originalName, filepath.Ext(stored.originalName))
	if stem == "" {
		stem = "image"
	}

	return s.finish(ws, OperationRasterize, output{
		filename:    fmt.Sprintf("%s.%s", stem, opts.Format.Extension()),
		kind:        ResultKindImage,
		contentType: opts.Format.MIMEType(),
		data:        out,
		meta: &RasterizeMeta{
			Format: string(opts.Format),
			DPI:    opts.DPI,
			Source: stored.meta(),
		},
	}, progress)
}
