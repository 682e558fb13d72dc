package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

// OperationType は処理の種別を表します。
type OperationType string

const (
	OperationAssemble   OperationType = "assemble"
	OperationSplit      OperationType = "split"
	OperationToImages   OperationType = "to-images"
	OperationFromImages OperationType = "from-images"
	OperationRasterize  OperationType = "rasterize"
	OperationCompress   OperationType = "compress"
	OperationSecure     OperationType = "secure"
)

// ResultKind は生成される成果物の種別を表します。
type ResultKind string

const (
	ResultKindPDF   ResultKind = "pdf"
	ResultKindZIP   ResultKind = "zip"
	ResultKindImage ResultKind = "image"
)

// Result は処理の成果を表します。
type Result struct {
	JobID          string        `json:"jobId"`
	Operation      OperationType `json:"operation"`
	OutputPath     string        `json:"outputPath"`
	OutputFilename string        `json:"outputFilename"`
	OutputSize     int64         `json:"outputSize"`
	ResultKind     ResultKind    `json:"resultKind"`
	ContentType    string        `json:"contentType"`
	Meta           any           `json:"meta,omitempty"`

	jobDir      string
	cleanupOnce sync.Once
	cleanupErr  error
}

// Cleanup は作業ディレクトリを削除します。
func (r *Result) Cleanup() error {
	if r == nil {
		return nil
	}
	r.cleanupOnce.Do(func() {
		r.cleanupErr = removeDir(r.jobDir)
	})
	return r.cleanupErr
}

// AssembleMeta は結合処理のメタデータです。
type AssembleMeta struct {
	TotalPages int               `json:"totalPages"`
	Sources    []AssembledSource `json:"sources"`
}

// AssembledSource は入力ファイルごとの採用ページです。
// Selected は0始まり・出力順、SelectedRange は同じ内容を1始まりの範囲式で表したものです。
type AssembledSource struct {
	SourceFileMeta
	Selected      []int  `json:"selected"`
	SelectedRange string `json:"selectedRange"`
}

// BatchMeta は分割・PDF→画像変換のメタデータです。Failures に失敗した項目が入ります。
type BatchMeta struct {
	Entries   []engine.Entry   `json:"entries"`
	Failures  []ItemFailure    `json:"failures,omitempty"`
	Processed int              `json:"processed"`
	Total     int              `json:"total"`
	Sources   []SourceFileMeta `json:"sources"`
}

// FromImagesMeta は画像→PDF変換のメタデータです。
type FromImagesMeta struct {
	Pages    int              `json:"pages"`
	Failures []ItemFailure    `json:"failures,omitempty"`
	Sources  []SourceFileMeta `json:"sources"`
}

// RasterizeMeta は画像の再サンプリング結果です。
type RasterizeMeta struct {
	Format string         `json:"format"`
	DPI    int            `json:"dpi"`
	Source SourceFileMeta `json:"source"`
}

// CompressMeta は圧縮処理のメタデータです。
type CompressMeta struct {
	OriginalSize int64          `json:"originalSize"`
	OutputSize   int64          `json:"outputSize"`
	SavedBytes   int64          `json:"savedBytes"`
	SavedPercent float64        `json:"savedPercent"`
	Level        engine.Level   `json:"level"`
	Distilled    bool           `json:"distilled"`
	Source       SourceFileMeta `json:"source"`
}

// SecureMeta はパスワード設定・解除のメタデータです。
type SecureMeta struct {
	Protected bool           `json:"protected"`
	Source    SourceFileMeta `json:"source"`
}

// output は out/ に書き出す成果物です。
type output struct {
	filename    string
	kind        ResultKind
	contentType string
	data        []byte
	meta        any
}

// finish は成果物とメタデータを保存し、期限後の削除を予約して Result を返します。
func (s *Service) finish(ws workspace, op OperationType, out output, progress ProgressReporter) (*Result, error) {
	reportProgress(progress, "write", 85)

	outputPath := filepath.Join(ws.outDir, out.filename)
	if err := os.WriteFile(outputPath, out.data, 0o640); err != nil {
		return nil, fmt.Errorf("出力ファイルの保存に失敗しました: %w", err)
	}

	metaPayload := struct {
		Type      OperationType `json:"type"`
		CreatedAt string        `json:"createdAt"`
		Output    string        `json:"output"`
		Meta      any           `json:"meta,omitempty"`
	}{
		Type:      op,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
		Output:    out.filename,
		Meta:      out.meta,
	}
	if err := writeJSON(ws.metaPath(), metaPayload); err != nil {
		return nil, fmt.Errorf("メタデータの保存に失敗しました: %w", err)
	}

	s.scheduleCleanup(ws)
	reportProgress(progress, "completed", 100)

	return &Result{
		JobID:          ws.jobID,
		Operation:      op,
		OutputPath:     outputPath,
		OutputFilename: out.filename,
		OutputSize:     int64(len(out.data)),
		ResultKind:     out.kind,
		ContentType:    out.contentType,
		Meta:           out.meta,
		jobDir:         ws.dir,
	}, nil
}
