package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// OpenResultFile はジョブIDに対応する成果物ファイルを開き、Result 情報とファイルハンドルを返します。
// 成果物のファイル名は実行時に保存した meta.json から取得します。
func (s *Service) OpenResultFile(jobID string) (*Result, *os.File, error) {
	if strings.TrimSpace(jobID) == "" {
		return nil, nil, fmt.Errorf("jobID is required")
	}

	ws, err := s.workspaceFor(jobID)
	if err != nil {
		return nil, nil, err
	}
	manifest, err := loadManifest(ws)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(ws.metaPath())
	if err != nil {
		return nil, nil, err
	}
	var meta struct {
		Output string          `json:"output"`
		Meta   json.RawMessage `json:"meta"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, nil, fmt.Errorf("failed to parse result metadata: %w", err)
	}
	if meta.Output == "" || meta.Output != filepath.Base(meta.Output) {
		return nil, nil, fmt.Errorf("invalid output filename in metadata: %q", meta.Output)
	}

	outputPath := filepath.Join(ws.outDir, meta.Output)
	file, err := os.Open(outputPath)
	if err != nil {
		return nil, nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	kind, contentType := classifyOutput(outputPath)
	result := &Result{
		JobID:          jobID,
		Operation:      manifest.Operation,
		OutputPath:     outputPath,
		OutputFilename: meta.Output,
		OutputSize:     info.Size(),
		ResultKind:     kind,
		ContentType:    contentType,
		Meta:           meta.Meta,
		jobDir:         ws.dir,
	}

	return result, file, nil
}

func classifyOutput(path string) (ResultKind, string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return ResultKindPDF, "application/pdf"
	case ".zip":
		return ResultKindZIP, "application/zip"
	}
	if mt, err := mimetype.DetectFile(path); err == nil {
		return ResultKindImage, mt.String()
	}
	return ResultKindImage, "application/octet-stream"
}

// ResponseContentType は成果物のレスポンス用 Content-Type を返します。
func (r *Result) ResponseContentType() string {
	if r.ContentType != "" {
		return r.ContentType
	}
	switch r.ResultKind {
	case ResultKindPDF:
		return "application/pdf"
	case ResultKindZIP:
		return "application/zip"
	}
	return "application/octet-stream"
}
