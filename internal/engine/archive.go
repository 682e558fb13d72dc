package engine

import (
	"archive/zip"
	"bytes"
	"fmt"
	"path"
	"strings"
)

// Entry はアーカイブに格納したファイルの情報です。
type Entry struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Page   int    `json:"page"`
	Size   int    `json:"size"`
}

// Archive はメモリ上に zip を組み立てます。エントリは追加順に並びます。
type Archive struct {
	buf     bytes.Buffer
	zw      *zip.Writer
	names   map[string]struct{}
	entries []Entry
}

// NewArchive は空の Archive を返します。
func NewArchive() *Archive {
	a := &Archive{names: make(map[string]struct{})}
	a.zw = zip.NewWriter(&a.buf)
	return a
}

// Add はエントリを追加します。同名のエントリは追加できません。
func (a *Archive) Add(entry Entry, data []byte) error {
	if _, dup := a.names[entry.Name]; dup {
		return fmt.Errorf("duplicate archive entry: %s", entry.Name)
	}

	w, err := a.zw.CreateHeader(&zip.FileHeader{
		Name:   entry.Name,
		Method: zip.Deflate,
	})
	if err != nil {
		return fmt.Errorf("zipヘッダーの書き込みに失敗しました: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("zipへの書き込みに失敗しました: %w", err)
	}

	entry.Size = len(data)
	a.names[entry.Name] = struct{}{}
	a.entries = append(a.entries, entry)
	return nil
}

// Entries は追加済みエントリの一覧です。
func (a *Archive) Entries() []Entry {
	return a.entries
}

// Close は zip を確定してバイト列を返します。
func (a *Archive) Close() ([]byte, error) {
	if err := a.zw.Close(); err != nil {
		return nil, fmt.Errorf("zipの確定に失敗しました: %w", err)
	}
	return a.buf.Bytes(), nil
}

// stems は各ソース名から拡張子を除いたファイル名を作り、重複には連番を付けます。
func stems(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]struct{})
	for i, name := range names {
		file := path.Base(strings.ReplaceAll(name, "\\", "/"))
		base := strings.TrimSuffix(file, path.Ext(file))
		if base == "" || base == "." || base == "/" {
			base = fmt.Sprintf("document-%d", i+1)
		}
		candidate := base
		for n := 2; ; n++ {
			if _, taken := used[candidate]; !taken {
				break
			}
			candidate = fmt.Sprintf("%s-%d", base, n)
		}
		used[candidate] = struct{}{}
		out[i] = candidate
	}
	return out
}
