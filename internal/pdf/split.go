package pdf

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/cbemstar/image-converter-app/internal/engine"
	"github.com/cbemstar/image-converter-app/internal/raster"
)

const (
	splitFilename  = "split.zip"
	imagesFilename = "images.zip"
)

// RasterParams は画像出力の指定です。0 の DPI・品質は既定値を使います。
type RasterParams struct {
	Format  string
	DPI     int
	Quality int
}

// SplitParams は分割の指定です。Indices（0始まり）があれば Range より優先します。
// Format が空または "pdf" なら1ページPDF、画像形式ならページ画像を出力します。
type SplitParams struct {
	Range   string
	Indices []int
	RasterParams
}

// rasterOptions は RasterParams を検証して raster.Options に変換します。
func (s *Service) rasterOptions(p RasterParams) (raster.Options, error) {
	format, err := raster.ParseFormat(p.Format)
	if err != nil {
		return raster.Options{}, newError("UNSUPPORTED_FORMAT", fmt.Sprintf("対応していない画像形式です: %s", p.Format), err)
	}
	opts := raster.Options{Format: format, DPI: p.DPI, Quality: p.Quality}
	if opts.DPI == 0 {
		opts.DPI = s.cfg.DefaultDPI
	}
	if s.cfg.MaxDPI > 0 && opts.DPI > s.cfg.MaxDPI {
		return raster.Options{}, newError("INVALID_INPUT", fmt.Sprintf("DPIは %d 以下で指定してください。", s.cfg.MaxDPI), nil)
	}
	opts = opts.Normalize()
	if err := opts.Validate(); err != nil {
		return raster.Options{}, newError("INVALID_INPUT", "DPIまたは品質の指定が範囲外です。", err)
	}
	return opts, nil
}

func splitAsPDF(format string) bool {
	return format == "" || strings.EqualFold(format, "pdf")
}

// PrepareSplitJob は入力を保存し、分割ジョブのマニフェストを作成します。
func (s *Service) PrepareSplitJob(ctx context.Context, files []*multipart.FileHeader, params SplitParams) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !splitAsPDF(params.Format) {
		if _, err := s.rasterOptions(params.RasterParams); err != nil {
			return nil, err
		}
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeMultipartFiles(ctx, files, ws.inDir, inputPDF)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	return s.saveManifest(ws, &JobManifest{
		Operation: OperationSplit,
		Range:     strings.TrimSpace(params.Range),
		Indices:   params.Indices,
		Format:    params.Format,
		DPI:       params.DPI,
		Quality:   params.Quality,
	}, stored)
}

func (s *Service) executeSplit(ctx context.Context, ws workspace, stored []storedFile, manifest *JobManifest, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, "load", 10)
	sources, err := loadSources(stored, nil)
	if err != nil {
		return nil, err
	}

	opts := engine.SplitOptions{
		Indices:  manifest.Indices,
		Range:    manifest.Range,
		Progress: engineProgress(progress),
	}
	if !splitAsPDF(manifest.Format) {
		rasterOpts, err := s.rasterOptions(RasterParams{Format: manifest.Format, DPI: manifest.DPI, Quality: manifest.Quality})
		if err != nil {
			return nil, err
		}
		opts.Format = string(rasterOpts.Format)
		opts.Raster = rasterOpts
	}

	res, err := s.engine.Split(ctx, sources, opts)
	if err != nil {
		return nil, fromEngineError(err)
	}
	if len(res.Entries) == 0 {
		return nil, batchFailure(res.Errors)
	}

	return s.finish(ws, OperationSplit, output{
		filename: splitFilename,
		kind:     ResultKindZIP,
		data:     res.Archive,
		meta:     batchMeta(res, stored),
	}, progress)
}

// PrepareToImagesJob は入力を保存し、PDF→画像変換ジョブのマニフェストを作成します。
// ranges[i] は files[i] の対象ページで、空なら全ページです。
func (s *Service) PrepareToImagesJob(ctx context.Context, files []*multipart.FileHeader, ranges []string, params RasterParams) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.rasterOptions(params); err != nil {
		return nil, err
	}
	if len(ranges) > len(files) {
		return nil, newError("INVALID_INPUT", fmt.Sprintf("範囲指定が %d 件ありますが、ファイルは %d 件です。", len(ranges), len(files)), nil)
	}

	ws, err := s.createWorkspace()
	if err != nil {
		return nil, err
	}
	stored, err := s.storeMultipartFiles(ctx, files, ws.inDir, inputPDF)
	if err != nil {
		_ = removeDir(ws.dir)
		return nil, err
	}

	return s.saveManifest(ws, &JobManifest{
		Operation: OperationToImages,
		Ranges:    ranges,
		Format:    params.Format,
		DPI:       params.DPI,
		Quality:   params.Quality,
	}, stored)
}

func (s *Service) executeToImages(ctx context.Context, ws workspace, stored []storedFile, manifest *JobManifest, progress ProgressReporter) (*Result, error) {
	rasterOpts, err := s.rasterOptions(RasterParams{Format: manifest.Format, DPI: manifest.DPI, Quality: manifest.Quality})
	if err != nil {
		return nil, err
	}

	reportProgress(progress, "load", 10)
	sources, err := loadSources(stored, manifest.Ranges)
	if err != nil {
		return nil, err
	}

	res, err := s.engine.DocumentToImages(ctx, sources, engine.ConvertOptions{
		Raster:   rasterOpts,
		Progress: engineProgress(progress),
	})
	if err != nil {
		return nil, fromEngineError(err)
	}
	if len(res.Entries) == 0 {
		return nil, batchFailure(res.Errors)
	}

	return s.finish(ws, OperationToImages, output{
		filename: imagesFilename,
		kind:     ResultKindZIP,
		data:     res.Archive,
		meta:     batchMeta(res, stored),
	}, progress)
}

func batchMeta(res *engine.BatchResult, stored []storedFile) *BatchMeta {
	return &BatchMeta{
		Entries:   res.Entries,
		Failures:  itemFailures(res.Errors),
		Processed: res.Processed,
		Total:     res.Total,
		Sources:   sourceMetas(stored),
	}
}

// batchFailure は全件失敗したバッチを、最初の失敗を代表とするエラーにします。
func batchFailure(errs []engine.ItemError) error {
	if len(errs) == 0 {
		return newError("INVALID_INPUT", "出力対象のページがありません。", nil)
	}
	failures := itemFailures(errs)
	first := failures[0]
	message := first.Message
	if len(failures) > 1 {
		message = fmt.Sprintf("%s（ほか %d 件の失敗）", message, len(failures)-1)
	}
	return newError(first.Code, message, errs[0])
}
