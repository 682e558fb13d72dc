package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"io"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"golang.org/x/sync/errgroup"

	"github.com/cbemstar/image-converter-app/internal/document"
	"github.com/cbemstar/image-converter-app/internal/raster"
)

// 直接埋め込める形式と、PNGへ変換してから埋め込む形式です。
var (
	embeddableImageTypes = []string{"image/png", "image/jpeg"}
	transcodedImageTypes = []string{"image/webp", "image/gif", "image/bmp", "image/tiff"}
	genericDeclaredTypes = []string{"", "application/octet-stream"}
)

// ImageInput は画像→PDF変換の入力1件です。MIMEType は申告された形式で、空でも構いません。
type ImageInput struct {
	Name     string
	Data     []byte
	MIMEType string
}

// ConvertResult は画像→PDF変換の結果です。Document は成功した画像を入力順に1ページずつ並べたPDFです。
type ConvertResult struct {
	Document []byte      `json:"-"`
	Pages    int         `json:"pages"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// ImagesToDocument は各画像をページ全面に配置した1ページずつのPDFを作り、入力順に連結します。
// ページサイズは画像サイズと同じで、拡大縮小はしません。読み込めない画像は Errors に記録して処理を続けます。
func (e *Engine) ImagesToDocument(ctx context.Context, images []ImageInput, progress ProgressFunc) (*ConvertResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(images) == 0 {
		return nil, &Error{Kind: InvalidOption, Err: errors.New("at least one image is required")}
	}

	var (
		builder document.Builder
		result  = &ConvertResult{}
	)

	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := imagePage(img)
		if err != nil {
			result.Errors = append(result.Errors, ItemError{Source: img.Name, Err: withSource(err, img.Name)})
		} else {
			builder.AddBytes(page, 1)
		}

		progress.report(Progress{Source: i, Sources: len(images), Done: 1, Total: 1})
	}

	if builder.Pages() == 0 {
		return result, nil
	}

	data, err := builder.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to merge image pages: %w", err)
	}
	result.Document = data
	result.Pages = builder.Pages()
	return result, nil
}

// imagePage は画像1枚から1ページのPDFを作ります。
func imagePage(in ImageInput) ([]byte, error) {
	detected := mimetype.Detect(in.Data)

	declared := strings.ToLower(strings.TrimSpace(in.MIMEType))
	if i := strings.IndexByte(declared, ';'); i >= 0 {
		declared = strings.TrimSpace(declared[:i])
	}
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if !containsString(genericDeclaredTypes, declared) && !detected.Is(declared) {
		return nil, &Error{
			Kind: UnsupportedFormat,
			Err:  fmt.Errorf("declared type %s does not match content (%s)", declared, detected.String()),
		}
	}

	data := in.Data
	switch {
	case matchesAny(detected, embeddableImageTypes):
	case matchesAny(detected, transcodedImageTypes):
		img, _, err := raster.Decode(in.Data)
		if err != nil {
			return nil, &Error{Kind: UnsupportedFormat, Err: err}
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, &Error{Kind: UnsupportedFormat, Err: err}
		}
		data = buf.Bytes()
	default:
		return nil, &Error{Kind: UnsupportedFormat, Err: fmt.Errorf("unsupported image type %s", detected.String())}
	}

	imp := pdfcpu.DefaultImportConfig()
	imp.Pos = types.Full

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	var out bytes.Buffer
	if err := importImage(&out, data, imp, conf); err != nil {
		return nil, &Error{Kind: UnsupportedFormat, Err: err}
	}
	return out.Bytes(), nil
}

// importImage は pdfcpu のパニックをエラーとして扱います（壊れた画像で発生することがあります）。
func importImage(w io.Writer, data []byte, imp *pdfcpu.Import, conf *model.Configuration) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("image import failed: %v", r)
		}
	}()
	return pdfapi.ImportImages(nil, w, []io.Reader{bytes.NewReader(data)}, imp, conf)
}

func matchesAny(m *mimetype.MIME, mimes []string) bool {
	for _, t := range mimes {
		if m.Is(t) {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ConvertOptions はPDF→画像変換の設定です。
type ConvertOptions struct {
	Raster   raster.Options
	Progress ProgressFunc
}

// fileImages は1ファイル分の変換結果です。
type fileImages struct {
	names  []string
	pages  []int
	images [][]byte
	errors []ItemError
	total  int
}

// DocumentToImages は各ソースの選択ページ（Range が空なら全ページ）を画像化し、アーカイブにまとめます。
// ファイル名は {stem}-page-{n}.{ext} です。ファイルは並行に処理されますが、アーカイブ内の順序は入力順です。
func (e *Engine) DocumentToImages(ctx context.Context, sources []Source, opts ConvertOptions) (*BatchResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(sources) == 0 {
		return nil, &Error{Kind: InvalidOption, Err: errors.New("at least one source is required")}
	}

	rasterOpts := opts.Raster.Normalize()
	if err := rasterOpts.Validate(); err != nil {
		return nil, rasterOptionError(err)
	}

	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.Name
	}
	prefixes := stems(names)

	var (
		mu        sync.Mutex
		completed int
		perFile   = make([]fileImages, len(sources))
	)
	reportFile := func() {
		mu.Lock()
		defer mu.Unlock()
		opts.Progress.report(Progress{Source: completed, Sources: len(sources), Done: 1, Total: 1})
		completed++
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			defer reportFile()
			res, err := e.rasterizeSource(gctx, src, prefixes[i], rasterOpts)
			if err != nil {
				return err
			}
			perFile[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	archive := NewArchive()
	result := &BatchResult{}
	for i, res := range perFile {
		result.Total += res.total
		result.Errors = append(result.Errors, res.errors...)
		for k, data := range res.images {
			result.Processed++
			entry := Entry{Name: res.names[k], Source: sources[i].Name, Page: res.pages[k]}
			if err := archive.Add(entry, data); err != nil {
				result.Errors = append(result.Errors, ItemError{Source: sources[i].Name, Page: res.pages[k], Err: err})
			}
		}
		result.Processed += countPageErrors(res.errors)
	}

	data, err := archive.Close()
	if err != nil {
		return nil, err
	}
	result.Archive = data
	result.Entries = archive.Entries()
	return result, nil
}

// rasterizeSource は1ファイルを画像化します。ファイルやページ単位の失敗は結果の errors に入り、
// 戻り値のエラーはキャンセルのみです。
func (e *Engine) rasterizeSource(ctx context.Context, src Source, prefix string, opts raster.Options) (fileImages, error) {
	var res fileImages

	doc, err := openSource(src)
	if err != nil {
		res.total = 1
		res.errors = append(res.errors, ItemError{Source: src.Name, Err: err})
		return res, nil
	}
	indices, err := selectPages(src.Range, doc.PageCount())
	if err != nil {
		res.total = 1
		res.errors = append(res.errors, ItemError{Source: src.Name, Err: withSource(err, src.Name)})
		return res, nil
	}

	res.total = len(indices)
	for _, idx := range indices {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		data, err := e.splitPage(ctx, doc, idx, false, opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.errors = append(res.errors, ItemError{Source: src.Name, Page: idx + 1, Err: err})
			continue
		}
		res.names = append(res.names, fmt.Sprintf("%s-page-%d.%s", prefix, idx+1, opts.Format.Extension()))
		res.pages = append(res.pages, idx+1)
		res.images = append(res.images, data)
	}
	return res, nil
}

func countPageErrors(errs []ItemError) int {
	n := 0
	for _, e := range errs {
		if e.Page > 0 {
			n++
		}
	}
	return n
}
