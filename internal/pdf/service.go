// Package pdf はアップロードされたファイルを作業ディレクトリに保存し、エンジンで変換した成果物を返すサービス層です。
package pdf

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/cbemstar/image-converter-app/internal/config"
	"github.com/cbemstar/image-converter-app/internal/engine"
	"github.com/cbemstar/image-converter-app/internal/storage"
)

const defaultCleanupMin = 10

// Service はPDF・画像変換ジョブの準備と実行を担います。
type Service struct {
	cfg     *config.Config
	storage *storage.Local
	engine  *engine.Engine
	now     func() time.Time
}

// NewService は Service を作成します。
func NewService(cfg *config.Config, store *storage.Local, eng *engine.Engine) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if store == nil {
		return nil, errors.New("storage is nil")
	}
	if eng == nil {
		return nil, errors.New("engine is nil")
	}
	return &Service{
		cfg:     cfg,
		storage: store,
		engine:  eng,
		now:     time.Now,
	}, nil
}

// DiscardJob は準備済みジョブの作業ディレクトリを削除します。
func (s *Service) DiscardJob(jobID string) error {
	return s.storage.Remove(jobID)
}

func (s *Service) createWorkspace() (workspace, error) {
	ws, err := s.storage.Create()
	if err != nil {
		return workspace{}, err
	}
	return fromStorage(ws), nil
}

func (s *Service) workspaceFor(jobID string) (workspace, error) {
	ws, err := s.storage.Open(jobID)
	if err != nil {
		return workspace{}, err
	}
	return fromStorage(ws), nil
}

// scheduleCleanup はジョブの有効期限が切れた後に作業ディレクトリを削除します。
func (s *Service) scheduleCleanup(ws workspace) {
	expireMinutes := s.cfg.JobExpireMinutes
	if expireMinutes <= 0 {
		expireMinutes = defaultCleanupMin
	}
	s.storage.RemoveAfter(ws.jobID, time.Duration(expireMinutes)*time.Minute)
}

func removeDir(dir string) error {
	return storage.RemoveDir(dir)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	return os.WriteFile(path, data, 0o640)
}
