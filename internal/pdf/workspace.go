package pdf

import (
	"path/filepath"

	"github.com/cbemstar/image-converter-app/internal/storage"
)

const metaFilename = "meta.json"

type workspace struct {
	jobID  string
	dir    string
	inDir  string
	outDir string
}

func fromStorage(ws storage.Workspace) workspace {
	return workspace{
		jobID:  ws.JobID,
		dir:    ws.Dir,
		inDir:  ws.InDir,
		outDir: ws.OutDir,
	}
}

func (w workspace) manifestPath() string {
	return filepath.Join(w.dir, manifestFilename)
}

func (w workspace) metaPath() string {
	return filepath.Join(w.dir, metaFilename)
}
