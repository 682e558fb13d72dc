package pdf

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"

	"github.com/cbemstar/image-converter-app/internal/engine"
	"github.com/cbemstar/image-converter-app/internal/pagerange"
)

const assembledFilename = "assembled.pdf"

// PrepareAssembleJob は入力を保存し、結合ジョブのマニフェストを作成します。
// specs[i] は files[i] の編集内容で、省略された分は全ページをそのまま使います。
func (s *Service) PrepareAssembleJob(ctx context.Context, files []*multipart.FileHeader, specs []engine.EditSpec) (*JobManifest, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(specs) > len(files) {
		return nil, newError("INVALID_INPUT", fmt.Sprintf("編集内容が %d 件ありますが、ファイルは %d 件です。", len(specs), len(files)), nil)
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

	// 範囲式はページ数だけで検証できるため、キュー投入前に弾く
	for i, spec := range specs {
		if strings.TrimSpace(spec.Range) == "" {
			continue
		}
		if _, err := pagerange.Parse(spec.Range, stored[i].pages); err != nil {
			_ = removeDir(ws.dir)
			return nil, rangeError(stored[i].originalName, spec.Range, err)
		}
	}

	return s.saveManifest(ws, &JobManifest{
		Operation: OperationAssemble,
		Specs:     specs,
	}, stored)
}

func (s *Service) executeAssemble(ctx context.Context, ws workspace, stored []storedFile, manifest *JobManifest, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, "load", 10)
	sources, err := loadSources(stored, nil)
	if err != nil {
		return nil, err
	}

	req := engine.Request{
		Sources:  make([]engine.AssemblySource, len(sources)),
		Progress: engineProgress(progress),
	}
	for i, src := range sources {
		req.Sources[i] = engine.AssemblySource{Source: src}
		if i < len(manifest.Specs) {
			req.Sources[i].Spec = manifest.Specs[i]
		}
	}

	out, err := s.engine.Assemble(ctx, req)
	if err != nil {
		return nil, fromEngineError(err)
	}

	meta := &AssembleMeta{
		TotalPages: out.Pages,
		Sources:    make([]AssembledSource, len(out.Sources)),
	}
	for i, summary := range out.Sources {
		meta.Sources[i] = AssembledSource{
			SourceFileMeta: stored[i].meta(),
			Selected:       summary.Selected,
			SelectedRange:  pagerange.Format(summary.Selected),
		}
	}

	return s.finish(ws, OperationAssemble, output{
		filename: assembledFilename,
		kind:     ResultKindPDF,
		data:     out.Data,
		meta:     meta,
	}, progress)
}

func rangeError(source, expr string, err error) error {
	segment := expr
	var segErr *pagerange.SegmentError
	if errors.As(err, &segErr) {
		segment = segErr.Segment
	}
	return fromEngineError(&engine.Error{Kind: engine.InvalidRangeSegment, Source: source, Segment: segment, Err: err})
}
