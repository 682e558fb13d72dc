// Package storage はジョブごとの作業ディレクトリ（in/out）をローカルファイルシステム上に管理します。
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	inDirName  = "in"
	outDirName = "out"
)

// ErrInvalidJobID はジョブIDとして扱えない文字列（UUID以外）を表します。
var ErrInvalidJobID = errors.New("invalid job id")

// Workspace は1ジョブ分の作業ディレクトリです。
type Workspace struct {
	JobID  string
	Dir    string
	InDir  string
	OutDir string
}

// Local は root 配下に <jobID>/in, <jobID>/out を作成します。
type Local struct {
	root string
}

// NewLocal は root を作成して Local を返します。
func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

// Root は作業ディレクトリのルートパスです。
func (l *Local) Root() string {
	return l.root
}

// Create は新しいジョブIDで作業ディレクトリを作成します。
func (l *Local) Create() (Workspace, error) {
	ws := l.layout(uuid.NewString())
	for _, dir := range []string{ws.InDir, ws.OutDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			_ = os.RemoveAll(ws.Dir)
			return Workspace{}, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
		}
	}
	return ws, nil
}

// Open は既存ジョブの作業ディレクトリのパスを返します。ディレクトリの存在は確認しません。
func (l *Local) Open(jobID string) (Workspace, error) {
	if _, err := uuid.Parse(jobID); err != nil {
		return Workspace{}, fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}
	return l.layout(jobID), nil
}

// Remove はジョブの作業ディレクトリを削除します。存在しない場合はエラーにしません。
func (l *Local) Remove(jobID string) error {
	ws, err := l.Open(jobID)
	if err != nil {
		return err
	}
	return RemoveDir(ws.Dir)
}

// RemoveAfter は d 経過後に作業ディレクトリを削除します。
func (l *Local) RemoveAfter(jobID string, d time.Duration) *time.Timer {
	return time.AfterFunc(d, func() {
		_ = l.Remove(jobID)
	})
}

// Sweep は最終更新から maxAge 以上経過したジョブディレクトリを削除し、削除数を返します。
// 再起動でタイマーが失われた作業ディレクトリの掃除に使います。
func (l *Local) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := RemoveDir(filepath.Join(l.root, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (l *Local) layout(jobID string) Workspace {
	dir := filepath.Join(l.root, jobID)
	return Workspace{
		JobID:  jobID,
		Dir:    dir,
		InDir:  filepath.Join(dir, inDirName),
		OutDir: filepath.Join(dir, outDirName),
	}
}

// RemoveDir はディレクトリを再帰的に削除します。空のパスは無視します。
func RemoveDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
