package pdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/cbemstar/image-converter-app/internal/document"
	"github.com/cbemstar/image-converter-app/internal/engine"
)

// inputKind はアップロードとして受け付けるファイルの種類です。
type inputKind int

const (
	inputPDF inputKind = iota
	// inputProtectedPDF はパスワード付きPDFも受け付けます（ページ数は0として記録）。
	inputProtectedPDF
	inputImage
)

var acceptedImageTypes = []string{"image/png", "image/jpeg", "image/webp", "image/gif", "image/bmp", "image/tiff"}

// SourceFileMeta は入力ファイルの概要です。
type SourceFileMeta struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	Pages int    `json:"pages"`
}

type storedFile struct {
	path         string
	originalName string
	size         int64
	pages        int
	mimeType     string
}

func (f storedFile) meta() SourceFileMeta {
	return SourceFileMeta{Name: f.originalName, Size: f.size, Pages: f.pages}
}

func sourceMetas(stored []storedFile) []SourceFileMeta {
	metas := make([]SourceFileMeta, len(stored))
	for i, sf := range stored {
		metas[i] = sf.meta()
	}
	return metas
}

// storeMultipartFiles は複数ファイルを順に保存します。ファイル数の上限も検証します。
func (s *Service) storeMultipartFiles(ctx context.Context, files []*multipart.FileHeader, dir string, kind inputKind) ([]storedFile, error) {
	if len(files) == 0 {
		return nil, newError("INVALID_INPUT", "ファイルを選択してください。", nil)
	}
	if s.cfg.MaxFiles > 0 && len(files) > s.cfg.MaxFiles {
		return nil, newError("LIMIT_EXCEEDED", fmt.Sprintf("一度に処理できるファイルは %d 件までです。", s.cfg.MaxFiles), nil)
	}

	stored := make([]storedFile, 0, len(files))
	for i, fh := range files {
		sf, err := s.storeMultipartFile(ctx, fh, dir, i, kind)
		if err != nil {
			return nil, err
		}
		stored = append(stored, sf)
	}
	return stored, nil
}

// storeMultipartFile はアップロードを dir にコピーし、サイズ・形式・ページ数を検証します。
func (s *Service) storeMultipartFile(ctx context.Context, fh *multipart.FileHeader, dir string, index int, kind inputKind) (storedFile, error) {
	if fh == nil {
		return storedFile{}, newError("INVALID_INPUT", "ファイルを選択してください。", nil)
	}
	if err := ctx.Err(); err != nil {
		return storedFile{}, err
	}

	name := filepath.Base(strings.ReplaceAll(fh.Filename, "\\", "/"))
	maxSize := s.cfg.MaxFileSize
	if maxSize > 0 && fh.Size > maxSize {
		return storedFile{}, limitError(name, maxSize)
	}

	src, err := fh.Open()
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルのオープンに失敗しました: %w", err)
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(name))
	path := filepath.Join(dir, fmt.Sprintf("%03d%s", index+1, ext))
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", err)
	}

	var reader io.Reader = src
	if maxSize > 0 {
		reader = io.LimitReader(src, maxSize+1)
	}
	size, copyErr := io.Copy(dst, reader)
	closeErr := dst.Close()
	if copyErr != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", copyErr)
	}
	if closeErr != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルの保存に失敗しました: %w", closeErr)
	}
	if maxSize > 0 && size > maxSize {
		return storedFile{}, limitError(name, maxSize)
	}
	if size == 0 {
		return storedFile{}, newError("INVALID_INPUT", fmt.Sprintf("%s: 空のファイルです。", name), nil)
	}

	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return storedFile{}, fmt.Errorf("ファイル形式の判定に失敗しました: %w", err)
	}

	stored := storedFile{
		path:         path,
		originalName: name,
		size:         size,
		mimeType:     mt.String(),
	}

	if kind == inputImage {
		if !mimeIn(mt, acceptedImageTypes) {
			return storedFile{}, newError("UNSUPPORTED_FORMAT", fmt.Sprintf("%s: 対応していない画像形式です (%s)。", name, mt.String()), nil)
		}
		stored.pages = 1
		return stored, nil
	}

	if !mt.Is("application/pdf") {
		return storedFile{}, newError("UNSUPPORTED_FORMAT", fmt.Sprintf("%s: PDFファイルではありません (%s)。", name, mt.String()), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return storedFile{}, fmt.Errorf("アップロードファイルの読み込みに失敗しました: %w", err)
	}
	pages, err := document.PageCountOf(data)
	switch {
	case errors.Is(err, document.ErrPassword) && kind == inputProtectedPDF:
		pages = 0
	case errors.Is(err, document.ErrPassword):
		return storedFile{}, newError("PASSWORD_REQUIRED", fmt.Sprintf("%s: パスワードで保護されたPDFは先に保護を解除してください。", name), err)
	case err != nil:
		return storedFile{}, newError("UNSUPPORTED_PDF", fmt.Sprintf("%s: PDFを読み込めませんでした。ファイルが破損していないか確認してください。", name), err)
	}
	if s.cfg.MaxPages > 0 && pages > s.cfg.MaxPages {
		return storedFile{}, newError("LIMIT_EXCEEDED", fmt.Sprintf("%s: ページ数が上限 (%d) を超えています。", name, s.cfg.MaxPages), nil)
	}
	stored.pages = pages
	return stored, nil
}

func limitError(name string, maxSize int64) *Error {
	return newError("LIMIT_EXCEEDED", fmt.Sprintf("%s: ファイルサイズが上限 (%dMB) を超えています。", name, maxSize/(1024*1024)), nil)
}

func mimeIn(mt *mimetype.MIME, accepted []string) bool {
	for _, a := range accepted {
		if mt.Is(a) {
			return true
		}
	}
	return false
}

// loadSources は保存済みファイルをエンジンの入力として読み込みます。ranges は位置ごとの範囲式です。
func loadSources(stored []storedFile, ranges []string) ([]engine.Source, error) {
	sources := make([]engine.Source, len(stored))
	for i, sf := range stored {
		data, err := os.ReadFile(sf.path)
		if err != nil {
			return nil, fmt.Errorf("入力ファイルの読み込みに失敗しました: %w", err)
		}
		sources[i] = engine.Source{Name: sf.originalName, Data: data}
		if i < len(ranges) {
			sources[i].Range = ranges[i]
		}
	}
	return sources, nil
}
