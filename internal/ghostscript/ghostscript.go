// Package ghostscript は Ghostscript を外部コマンドとして呼び出し、ページのラスタライズとPDFの再生成を行います。
package ghostscript

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
)

// Preset は pdfwrite の -dPDFSETTINGS に渡す品質プリセットです。
type Preset string

const (
	PresetPrinter Preset = "printer"
	PresetEbook   Preset = "ebook"
	PresetScreen  Preset = "screen"
)

// ErrNotConfigured は実行ファイルのパスが設定されていないことを表します。
var ErrNotConfigured = errors.New("ghostscript path is not configured")

// CommandFunc は外部コマンドを実行し、標準出力を stdout に書き込みます。
type CommandFunc func(ctx context.Context, name string, args []string, stdout io.Writer) error

// Runner は Ghostscript 実行ファイルを呼び出します。
type Runner struct {
	path string
	run  CommandFunc
}

// New は path の Ghostscript を利用する Runner を返します。
func New(path string) *Runner {
	return &Runner{path: path, run: runCommand}
}

// NewWithCommand はコマンド実行部分を差し替えた Runner を返します（テスト用）。
func NewWithCommand(path string, run CommandFunc) *Runner {
	return &Runner{path: path, run: run}
}

func runCommand(ctx context.Context, name string, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// RenderPage はPDFの0始まりページ page を dpi で PNG にレンダリングし、デコード済み画像を返します。
// 出力のピクセル寸法は ページサイズ(pt) * dpi / 72 になります。
func (r *Runner) RenderPage(ctx context.Context, pdf []byte, page int, dpi int) (image.Image, error) {
	if r == nil || r.path == "" {
		return nil, ErrNotConfigured
	}

	dir, err := os.MkdirTemp("", "gs-render-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(inputPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write render input: %w", err)
	}

	var out bytes.Buffer
	if err := r.run(ctx, r.path, renderArgs(inputPath, page+1, dpi), &out); err != nil {
		return nil, fmt.Errorf("ghostscript render failed: %w", err)
	}

	img, err := png.Decode(&out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ghostscript output: %w", err)
	}
	return img, nil
}

// Distill は pdfwrite デバイスでPDFを再生成します。
func (r *Runner) Distill(ctx context.Context, pdf []byte, preset Preset) ([]byte, error) {
	if r == nil || r.path == "" {
		return nil, ErrNotConfigured
	}

	dir, err := os.MkdirTemp("", "gs-distill-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	inputPath := filepath.Join(dir, "input.pdf")
	outputPath := filepath.Join(dir, "output.pdf")
	if err := os.WriteFile(inputPath, pdf, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write distill input: %w", err)
	}

	var log bytes.Buffer
	if err := r.run(ctx, r.path, distillArgs(outputPath, inputPath, preset), &log); err != nil {
		return nil, fmt.Errorf("ghostscript distill failed: %w", err)
	}

	return os.ReadFile(outputPath)
}

func renderArgs(inputPath string, pageNr, dpi int) []string {
	return []string{
		"-q",
		"-dSAFER",
		"-dBATCH",
		"-dNOPAUSE",
		"-sDEVICE=png16m",
		"-dTextAlphaBits=4",
		"-dGraphicsAlphaBits=4",
		"-r" + strconv.Itoa(dpi),
		"-dFirstPage=" + strconv.Itoa(pageNr),
		"-dLastPage=" + strconv.Itoa(pageNr),
		"-sOutputFile=-",
		inputPath,
	}
}

func distillArgs(outputPath, inputPath string, preset Preset) []string {
	if preset == "" {
		preset = PresetPrinter
	}

	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.5",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-dPDFSETTINGS=/%s", preset),
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}
