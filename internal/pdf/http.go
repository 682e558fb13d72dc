package pdf

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

// JobRunner はジョブを実行できるサービスが実装します。
type JobRunner interface {
	RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error)
	DiscardJob(jobID string) error
}

// AssembleService は結合ジョブの準備と実行を提供します。
type AssembleService interface {
	JobRunner
	PrepareAssembleJob(ctx context.Context, files []*multipart.FileHeader, specs []engine.EditSpec) (*JobManifest, error)
}

// SplitService は分割ジョブの準備と実行を提供します。
type SplitService interface {
	JobRunner
	PrepareSplitJob(ctx context.Context, files []*multipart.FileHeader, params SplitParams) (*JobManifest, error)
}

// ToImagesService はPDF→画像変換ジョブの準備と実行を提供します。
type ToImagesService interface {
	JobRunner
	PrepareToImagesJob(ctx context.Context, files []*multipart.FileHeader, ranges []string, params RasterParams) (*JobManifest, error)
}

// FromImagesService は画像→PDF変換ジョブの準備と実行を提供します。
type FromImagesService interface {
	JobRunner
	PrepareFromImagesJob(ctx context.Context, files []*multipart.FileHeader) (*JobManifest, error)
}

// RasterizeService は画像のDPI・形式変換ジョブの準備と実行を提供します。
type RasterizeService interface {
	JobRunner
	PrepareRasterizeJob(ctx context.Context, file *multipart.FileHeader, params RasterParams) (*JobManifest, error)
}

// CompressService は圧縮ジョブの準備と実行を提供します。
type CompressService interface {
	JobRunner
	PrepareCompressJob(ctx context.Context, file *multipart.FileHeader, level string) (*JobManifest, error)
}

// SecureService はパスワード設定・解除を同期で提供します。
type SecureService interface {
	SecureMultipart(ctx context.Context, file *multipart.FileHeader, params SecureParams) (*Result, error)
}

// InspectService はPDFのメタデータ取得を提供します。
type InspectService interface {
	InspectMultipart(ctx context.Context, file *multipart.FileHeader) (*InspectResult, error)
}

// JobScheduler はジョブを非同期キューに投入するためのインターフェースです。
type JobScheduler interface {
	Schedule(ctx context.Context, op OperationType, jobID string) error
}

// HandlerOptions は同期/非同期切り替えのための設定です。
type HandlerOptions struct {
	Scheduler           JobScheduler
	AsyncThresholdBytes int64
	AsyncThresholdPages int
}

// AssembleHandler は POST /api/pdf/assemble のハンドラーを返します。
// specs はファイルごとの {range, deletes, reorder, rotations} を並べたJSON配列です。
func AssembleHandler(svc AssembleService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			badRequest(c, "アップロードされたPDFファイルが見つかりません。")
			return
		}

		specs, err := parseSpecs(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		manifest, err := svc.PrepareAssembleJob(c.Request.Context(), files, specs)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "結合結果の読み込みに失敗しました")
	}
}

// SplitHandler は POST /api/pdf/split のハンドラーを返します。
func SplitHandler(svc SplitService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			badRequest(c, "アップロードされたPDFファイルが見つかりません。")
			return
		}

		indices, err := parseIntList(c, "indices")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		rasterParams, err := parseRasterParams(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		params := SplitParams{
			Range:        strings.TrimSpace(c.PostForm("range")),
			Indices:      indices,
			RasterParams: rasterParams,
		}
		manifest, err := svc.PrepareSplitJob(c.Request.Context(), files, params)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "分割結果の読み込みに失敗しました")
	}
}

// ToImagesHandler は POST /api/pdf/to-images のハンドラーを返します。
func ToImagesHandler(svc ToImagesService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			badRequest(c, "アップロードされたPDFファイルが見つかりません。")
			return
		}

		ranges, err := parseStringList(c, "ranges")
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		params, err := parseRasterParams(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		manifest, err := svc.PrepareToImagesJob(c.Request.Context(), files, ranges, params)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "画像変換結果の読み込みに失敗しました")
	}
}

// FromImagesHandler は POST /api/pdf/from-images のハンドラーを返します。
func FromImagesHandler(svc FromImagesService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		files := extractFiles(form)
		if len(files) == 0 {
			badRequest(c, "アップロードされた画像ファイルが見つかりません。")
			return
		}

		manifest, err := svc.PrepareFromImagesJob(c.Request.Context(), files)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "PDF変換結果の読み込みに失敗しました")
	}
}

// RasterizeHandler は POST /api/images/rasterize のハンドラーを返します。
func RasterizeHandler(svc RasterizeService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, "画像ファイルを選択してください。")
			return
		}
		params, err := parseRasterParams(c)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		manifest, err := svc.PrepareRasterizeJob(c.Request.Context(), file, params)
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "画像変換結果の読み込みに失敗しました")
	}
}

// CompressHandler は POST /api/pdf/compress のハンドラーを返します。
func CompressHandler(svc CompressService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		manifest, err := svc.PrepareCompressJob(c.Request.Context(), file, strings.TrimSpace(c.PostForm("level")))
		if err != nil {
			respondWithError(c, err)
			return
		}
		dispatch(c, svc, manifest, opts, "圧縮結果の読み込みに失敗しました")
	}
}

// SecureHandler は POST /api/pdf/secure のハンドラーを返します。常に同期で処理します。
func SecureHandler(svc SecureService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		remove, err := parseBool(c.PostForm("removePassword"))
		if err != nil {
			badRequest(c, "removePassword は true または false で指定してください。")
			return
		}

		result, err := svc.SecureMultipart(c.Request.Context(), file, SecureParams{
			Password:        c.PostForm("password"),
			CurrentPassword: c.PostForm("currentPassword"),
			RemovePassword:  remove,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}
		defer result.Cleanup()

		if err := streamResult(c, result, "パスワード設定結果の読み込みに失敗しました"); err != nil {
			respondWithError(c, err)
		}
	}
}

// InspectHandler は POST /api/pdf/inspect のハンドラーを返します。
func InspectHandler(svc InspectService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, ok := multipartForm(c)
		if !ok {
			return
		}
		defer form.RemoveAll()

		file, err := extractSingleFile(form)
		if err != nil {
			badRequest(c, err.Error())
			return
		}

		result, err := svc.InspectMultipart(c.Request.Context(), file)
		if err != nil {
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// dispatch は閾値に応じてジョブをキューへ投入するか、その場で実行して結果を返します。
func dispatch(c *gin.Context, svc JobRunner, manifest *JobManifest, opts HandlerOptions, readErrMsg string) {
	if shouldProcessAsync(manifest, opts) {
		if err := opts.Scheduler.Schedule(c.Request.Context(), manifest.Operation, manifest.JobID); err != nil {
			if cleanupErr := svc.DiscardJob(manifest.JobID); cleanupErr != nil {
				err = fmt.Errorf("%w (cleanup failed: %v)", err, cleanupErr)
			}
			respondWithError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"jobId": manifest.JobID})
		return
	}

	result, err := svc.RunJob(c.Request.Context(), manifest.JobID, nil)
	if err != nil {
		respondWithError(c, err)
		return
	}
	defer result.Cleanup()

	if err := streamResult(c, result, readErrMsg); err != nil {
		respondWithError(c, err)
	}
}

func shouldProcessAsync(manifest *JobManifest, opts HandlerOptions) bool {
	if manifest == nil || opts.Scheduler == nil {
		return false
	}

	if opts.AsyncThresholdBytes > 0 {
		var total int64
		for _, f := range manifest.Files {
			total += f.Size
		}
		if total > opts.AsyncThresholdBytes {
			return true
		}
	}

	if opts.AsyncThresholdPages > 0 {
		var total int
		for _, f := range manifest.Files {
			total += f.Pages
		}
		if total > opts.AsyncThresholdPages {
			return true
		}
	}

	return false
}

func multipartForm(c *gin.Context) (*multipart.Form, bool) {
	form, err := c.MultipartForm()
	if err != nil {
		badRequest(c, "multipart/form-data でファイルを送信してください。")
		return nil, false
	}
	return form, true
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"code":    "INVALID_INPUT",
		"message": message,
	})
}

func parseSpecs(c *gin.Context) ([]engine.EditSpec, error) {
	raw := strings.TrimSpace(c.PostForm("specs"))
	if raw == "" {
		return nil, nil
	}
	var specs []engine.EditSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, errors.New(`specs は JSON 配列で指定してください。例: [{"range":"1-3","rotations":[90]}]`)
	}
	return specs, nil
}

// parseIntList は field を JSON の整数配列、または field[] の繰り返しとして読み取ります。
func parseIntList(c *gin.Context, field string) ([]int, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw != "" {
		var values []int
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("%s は JSON 形式の整数配列で指定してください。例: [0,1,2]", field)
		}
		return values, nil
	}

	if items := c.PostFormArray(field + "[]"); len(items) > 0 {
		values := make([]int, len(items))
		for i, v := range items {
			trimmed := strings.TrimSpace(v)
			if trimmed == "" {
				return nil, fmt.Errorf("%s[] に空の値が含まれています。", field)
			}
			num, err := strconv.Atoi(trimmed)
			if err != nil {
				return nil, fmt.Errorf("%s[] の値は整数で指定してください。", field)
			}
			values[i] = num
		}
		return values, nil
	}

	return nil, nil
}

// parseStringList は field を JSON の文字列配列、または field[] の繰り返しとして読み取ります。
func parseStringList(c *gin.Context, field string) ([]string, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw != "" {
		var values []string
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, fmt.Errorf("%s は JSON 形式の文字列配列で指定してください。", field)
		}
		return values, nil
	}
	if items := c.PostFormArray(field + "[]"); len(items) > 0 {
		return items, nil
	}
	return nil, nil
}

func parseRasterParams(c *gin.Context) (RasterParams, error) {
	params := RasterParams{Format: strings.TrimSpace(c.PostForm("format"))}
	var err error
	if params.DPI, err = optionalInt(c.PostForm("dpi")); err != nil {
		return RasterParams{}, errors.New("dpi は整数で指定してください。")
	}
	if params.Quality, err = optionalInt(c.PostForm("quality")); err != nil {
		return RasterParams{}, errors.New("quality は整数で指定してください。")
	}
	return params, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func parseBool(raw string) (bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}

func extractFiles(form *multipart.Form) []*multipart.FileHeader {
	if files := form.File["files[]"]; len(files) > 0 {
		return files
	}
	return form.File["files"]
}

func extractSingleFile(form *multipart.Form) (*multipart.FileHeader, error) {
	if form == nil {
		return nil, errors.New("ファイルを選択してください。")
	}
	for _, field := range []string{"file", "file[]", "files", "files[]"} {
		if files := form.File[field]; len(files) > 0 {
			return files[0], nil
		}
	}
	return nil, errors.New("ファイルを選択してください。")
}

func streamResult(c *gin.Context, result *Result, readErrMsg string) error {
	file, err := os.Open(result.OutputPath)
	if err != nil {
		return fmt.Errorf("%s: %w", readErrMsg, err)
	}
	defer file.Close()

	contentType := result.ResponseContentType()
	encodedName := url.PathEscape(result.OutputFilename)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", result.OutputFilename, encodedName))
	c.Header("Cache-Control", "no-store")
	c.Header("X-Job-Id", result.JobID)
	c.DataFromReader(http.StatusOK, result.OutputSize, contentType, file, nil)
	return nil
}
