package pdf

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

const manifestFilename = "manifest.json"

// JobManifest はジョブに必要な情報を保持します。パスワードは保存しません。
type JobManifest struct {
	JobID     string            `json:"jobId"`
	Operation OperationType     `json:"operation"`
	Files     []JobFile         `json:"files"`
	Specs     []engine.EditSpec `json:"specs,omitempty"`
	Range     string            `json:"range,omitempty"`
	Ranges    []string          `json:"ranges,omitempty"`
	Indices   []int             `json:"indices,omitempty"`
	Format    string            `json:"format,omitempty"`
	DPI       int               `json:"dpi,omitempty"`
	Quality   int               `json:"quality,omitempty"`
	Level     engine.Level      `json:"level,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// JobFile はジョブ入力ファイルのメタデータを表します。
type JobFile struct {
	StoredName   string `json:"storedName"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	Pages        int    `json:"pages"`
	MIMEType     string `json:"mimeType"`
}

// storedFile は作業ディレクトリ ws 内の保存先を解決します。
func (f JobFile) storedFile(ws workspace) storedFile {
	return storedFile{
		path:         filepath.Join(ws.inDir, f.StoredName),
		originalName: f.OriginalName,
		size:         f.Size,
		pages:        f.Pages,
		mimeType:     f.MIMEType,
	}
}

func (f storedFile) jobFile() JobFile {
	return JobFile{
		StoredName:   filepath.Base(f.path),
		OriginalName: f.originalName,
		Size:         f.size,
		Pages:        f.pages,
		MIMEType:     f.mimeType,
	}
}

// inputs はマニフェストに記録された入力ファイルを受付順に返します。
func (m *JobManifest) inputs(ws workspace) []storedFile {
	stored := make([]storedFile, len(m.Files))
	for i, f := range m.Files {
		stored[i] = f.storedFile(ws)
	}
	return stored
}

func writeManifest(ws workspace, manifest *JobManifest) error {
	if manifest == nil {
		return fmt.Errorf("manifest is nil")
	}
	file, err := os.OpenFile(ws.manifestPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(manifest)
}

func loadManifest(ws workspace) (*JobManifest, error) {
	data, err := os.ReadFile(ws.manifestPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest JobManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &manifest, nil
}

// saveManifest は入力ファイル情報を補ってマニフェストを保存します。失敗した場合は作業ディレクトリを削除します。
func (s *Service) saveManifest(ws workspace, manifest *JobManifest, stored []storedFile) (*JobManifest, error) {
	manifest.JobID = ws.jobID
	manifest.Files = make([]JobFile, len(stored))
	for i, sf := range stored {
		manifest.Files[i] = sf.jobFile()
	}
	manifest.CreatedAt = s.now().UTC()
	if err := writeManifest(ws, manifest); err != nil {
		_ = removeDir(ws.dir)
		return nil, fmt.Errorf("ジョブマニフェストの保存に失敗しました: %w", err)
	}
	return manifest, nil
}
