package pdf

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cbemstar/image-converter-app/internal/engine"
)

type stubJobService struct {
	manifest   *JobManifest
	prepareErr error
	result     *Result
	runErr     error

	gotSpecs  []engine.EditSpec
	gotSplit  SplitParams
	gotRanges []string
	gotRaster RasterParams
	gotLevel  string
	gotSecure SecureParams
	discarded []string
}

func (s *stubJobService) RunJob(ctx context.Context, jobID string, reporter ProgressReporter) (*Result, error) {
	return s.result, s.runErr
}

func (s *stubJobService) DiscardJob(jobID string) error {
	s.discarded = append(s.discarded, jobID)
	return nil
}

func (s *stubJobService) PrepareAssembleJob(ctx context.Context, files []*multipart.FileHeader, specs []engine.EditSpec) (*JobManifest, error) {
	s.gotSpecs = specs
	return s.manifest, s.prepareErr
}

func (s *stubJobService) PrepareSplitJob(ctx context.Context, files []*multipart.FileHeader, params SplitParams) (*JobManifest, error) {
	s.gotSplit = params
	return s.manifest, s.prepareErr
}

func (s *stubJobService) PrepareToImagesJob(ctx context.Context, files []*multipart.FileHeader, ranges []string, params RasterParams) (*JobManifest, error) {
	s.gotRanges = ranges
	s.gotRaster = params
	return s.manifest, s.prepareErr
}

func (s *stubJobService) PrepareCompressJob(ctx context.Context, file *multipart.FileHeader, level string) (*JobManifest, error) {
	s.gotLevel = level
	return s.manifest, s.prepareErr
}

func (s *stubJobService) SecureMultipart(ctx context.Context, file *multipart.FileHeader, params SecureParams) (*Result, error) {
	s.gotSecure = params
	return s.result, s.runErr
}

type stubScheduler struct {
	err       error
	scheduled []string
}

func (s *stubScheduler) Schedule(ctx context.Context, op OperationType, jobID string) error {
	s.scheduled = append(s.scheduled, string(op)+":"+jobID)
	return s.err
}

func newMultipartRequest(t *testing.T, path, field string, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile(field, "input1.pdf")
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	if _, err := fileWriter.Write([]byte("dummy")); err != nil {
		t.Fatalf("failed to write dummy file: %v", err)
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func newFormContext(t *testing.T, form string) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx, _ := gin.CreateTestContext(httptest.NewRecorder())
	ctx.Request = httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(form))
	ctx.Request.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return ctx
}

func writeResultFile(t *testing.T, name string, data []byte) (string, string) {
	t.Helper()
	jobDir := filepath.Join(t.TempDir(), "job")
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		t.Fatalf("failed to create jobDir: %v", err)
	}
	outputPath := filepath.Join(jobDir, name)
	if err := os.WriteFile(outputPath, data, 0o640); err != nil {
		t.Fatalf("failed to create output file: %v", err)
	}
	return jobDir, outputPath
}

func TestParseIntListJSON(t *testing.T) {
	ctx := newFormContext(t, "indices=%5B0%2C2%2C1%5D")

	values, err := parseIntList(ctx, "indices")
	if err != nil {
		t.Fatalf("parseIntList returned error: %v", err)
	}
	expected := []int{0, 2, 1}
	if len(values) != len(expected) {
		t.Fatalf("unexpected length: %#v", values)
	}
	for i, v := range expected {
		if values[i] != v {
			t.Fatalf("values[%d] = %d, want %d", i, values[i], v)
		}
	}
}

func TestParseIntListArray(t *testing.T) {
	ctx := newFormContext(t, "indices[]=0&indices[]=1")

	values, err := parseIntList(ctx, "indices")
	if err != nil {
		t.Fatalf("parseIntList returned error: %v", err)
	}
	if len(values) != 2 || values[0] != 0 || values[1] != 1 {
		t.Fatalf("unexpected values: %#v", values)
	}
}

func TestParseIntListInvalid(t *testing.T) {
	if _, err := parseIntList(newFormContext(t, "indices=not-json"), "indices"); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := parseIntList(newFormContext(t, "indices[]=x"), "indices"); err == nil {
		t.Fatal("expected error for non-integer item")
	}
}

func TestParseSpecs(t *testing.T) {
	ctx := newFormContext(t, `specs=[{"range":"1-2","deletes":[1],"rotations":[90,null]}]`)

	specs, err := parseSpecs(ctx)
	if err != nil {
		t.Fatalf("parseSpecs returned error: %v", err)
	}
	if len(specs) != 1 {
		t.Fatalf("unexpected specs: %#v", specs)
	}
	spec := specs[0]
	if spec.Range != "1-2" || len(spec.Deletes) != 1 || spec.Deletes[0] != 1 {
		t.Fatalf("unexpected spec: %#v", spec)
	}
	if len(spec.Rotations) != 2 || spec.Rotations[0] == nil || *spec.Rotations[0] != 90 || spec.Rotations[1] != nil {
		t.Fatalf("unexpected rotations: %#v", spec.Rotations)
	}
}

func TestParseRasterParams(t *testing.T) {
	params, err := parseRasterParams(newFormContext(t, "format=jpeg&dpi=150&quality=80"))
	if err != nil {
		t.Fatalf("parseRasterParams returned error: %v", err)
	}
	if params.Format != "jpeg" || params.DPI != 150 || params.Quality != 80 {
		t.Fatalf("unexpected params: %#v", params)
	}

	if _, err := parseRasterParams(newFormContext(t, "dpi=high")); err == nil {
		t.Fatal("expected error for non-integer dpi")
	}
}

func TestAssembleHandlerSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pdfData := []byte("%PDF-1.4\n% dummy pdf content\n")
	jobDir, outputPath := writeResultFile(t, "assembled.pdf", pdfData)

	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-123", Operation: OperationAssemble},
		result: &Result{
			JobID:          "job-123",
			Operation:      OperationAssemble,
			OutputPath:     outputPath,
			OutputFilename: "assembled.pdf",
			OutputSize:     int64(len(pdfData)),
			ResultKind:     ResultKindPDF,
			jobDir:         jobDir,
		},
	}

	req := newMultipartRequest(t, "/api/pdf/assemble", "files[]", map[string]string{
		"specs": `[{"range":"2-3","reorder":[1,0]}]`,
	})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/pdf/assemble", AssembleHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Fatal("expected Content-Disposition header")
	}
	if rec.Header().Get("X-Job-Id") != "job-123" {
		t.Fatalf("unexpected X-Job-Id header: %s", rec.Header().Get("X-Job-Id"))
	}
	if !bytes.Equal(rec.Body.Bytes(), pdfData) {
		t.Fatalf("unexpected response body: %q", rec.Body.Bytes())
	}
	if len(service.gotSpecs) != 1 || service.gotSpecs[0].Range != "2-3" || len(service.gotSpecs[0].Reorder) != 2 {
		t.Fatalf("specs not passed through: %#v", service.gotSpecs)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("expected jobDir to be removed, stat err=%v", err)
	}
}

func TestAssembleHandlerLimitExceeded(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		prepareErr: &Error{Code: "LIMIT_EXCEEDED", Message: "サイズ上限を超えています"},
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/assemble", AssembleHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/assemble", "files[]", nil))

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "LIMIT_EXCEEDED" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestAssembleHandlerInvalidSpecs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/assemble", AssembleHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/assemble", "files[]", map[string]string{"specs": "not-json"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestAssembleHandlerEngineErrorCode(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-1", Operation: OperationAssemble},
		runErr:   fromEngineError(&engine.Error{Kind: engine.InvalidReorderIndex, Source: "a.pdf", Index: 7}),
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/assemble", AssembleHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/assemble", "files[]", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["code"] != "INVALID_REORDER_INDEX" {
		t.Fatalf("unexpected code: %s", payload["code"])
	}
}

func TestSplitHandlerSchedulesLargeJobs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		manifest: &JobManifest{
			JobID:     "job-async",
			Operation: OperationSplit,
			Files:     []JobFile{{Size: 2048, Pages: 3}},
		},
	}
	scheduler := &stubScheduler{}

	req := newMultipartRequest(t, "/api/pdf/split", "files[]", map[string]string{
		"range":   "1-2",
		"indices": "[2,0]",
		"format":  "png",
		"dpi":     "144",
	})
	rec := httptest.NewRecorder()

	router := gin.New()
	router.POST("/api/pdf/split", SplitHandler(service, HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 1024}))
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if payload["jobId"] != "job-async" {
		t.Fatalf("unexpected jobId: %s", payload["jobId"])
	}
	if len(scheduler.scheduled) != 1 || scheduler.scheduled[0] != "split:job-async" {
		t.Fatalf("unexpected schedule calls: %#v", scheduler.scheduled)
	}

	got := service.gotSplit
	if got.Range != "1-2" || len(got.Indices) != 2 || got.Indices[0] != 2 || got.Format != "png" || got.DPI != 144 {
		t.Fatalf("unexpected split params: %#v", got)
	}
}

func TestSplitHandlerScheduleFailureDiscardsJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		manifest: &JobManifest{
			JobID:     "job-x",
			Operation: OperationSplit,
			Files:     []JobFile{{Size: 10, Pages: 50}},
		},
	}
	scheduler := &stubScheduler{err: errors.New("redis down")}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/split", SplitHandler(service, HandlerOptions{Scheduler: scheduler, AsyncThresholdPages: 10}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/split", "files[]", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if len(service.discarded) != 1 || service.discarded[0] != "job-x" {
		t.Fatalf("expected job to be discarded, got %#v", service.discarded)
	}
}

func TestToImagesHandlerPassesRanges(t *testing.T) {
	gin.SetMode(gin.TestMode)
	zipData := []byte("PK\x05\x06dummy")
	jobDir, outputPath := writeResultFile(t, "images.zip", zipData)
	service := &stubJobService{
		manifest: &JobManifest{JobID: "job-img", Operation: OperationToImages},
		result: &Result{
			JobID:          "job-img",
			OutputPath:     outputPath,
			OutputFilename: "images.zip",
			OutputSize:     int64(len(zipData)),
			ResultKind:     ResultKindZIP,
			jobDir:         jobDir,
		},
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/to-images", ToImagesHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/to-images", "files", map[string]string{
		"ranges": `["1-2",""]`,
		"format": "webp",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/zip" {
		t.Fatalf("unexpected content-type: %s", ct)
	}
	if len(service.gotRanges) != 2 || service.gotRanges[0] != "1-2" || service.gotRanges[1] != "" {
		t.Fatalf("unexpected ranges: %#v", service.gotRanges)
	}
	if service.gotRaster.Format != "webp" {
		t.Fatalf("unexpected raster params: %#v", service.gotRaster)
	}
}

func TestCompressHandlerPassesLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{
		prepareErr: &Error{Code: "INVALID_INPUT", Message: "level"},
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/compress", CompressHandler(service, HandlerOptions{}))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/compress", "file", map[string]string{"level": " high "}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	if service.gotLevel != "high" {
		t.Fatalf("unexpected level: %q", service.gotLevel)
	}
}

func TestSecureHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	pdfData := []byte("%PDF-1.7\n% protected\n")
	jobDir, outputPath := writeResultFile(t, "protected.pdf", pdfData)
	service := &stubJobService{
		result: &Result{
			JobID:          "job-sec",
			OutputPath:     outputPath,
			OutputFilename: "protected.pdf",
			OutputSize:     int64(len(pdfData)),
			ResultKind:     ResultKindPDF,
			jobDir:         jobDir,
		},
	}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/secure", SecureHandler(service))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/secure", "file", map[string]string{
		"password":        "new",
		"currentPassword": "old",
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body=%s", rec.Code, rec.Body.String())
	}
	if service.gotSecure.Password != "new" || service.gotSecure.CurrentPassword != "old" || service.gotSecure.RemovePassword {
		t.Fatalf("unexpected secure params: %#v", service.gotSecure)
	}
	if _, err := os.Stat(jobDir); !os.IsNotExist(err) {
		t.Fatalf("expected jobDir to be removed, stat err=%v", err)
	}
}

func TestSecureHandlerInvalidRemoveFlag(t *testing.T) {
	gin.SetMode(gin.TestMode)
	service := &stubJobService{}

	rec := httptest.NewRecorder()
	router := gin.New()
	router.POST("/api/pdf/secure", SecureHandler(service))
	router.ServeHTTP(rec, newMultipartRequest(t, "/api/pdf/secure", "file", map[string]string{"removePassword": "maybe"}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestRespondWithErrorCanceled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(rec)

	respondWithError(ctx, context.Canceled)

	if rec.Code != http.StatusRequestTimeout {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestShouldProcessAsync(t *testing.T) {
	manifest := &JobManifest{Files: []JobFile{{Size: 600, Pages: 4}, {Size: 600, Pages: 4}}}
	scheduler := &stubScheduler{}

	cases := []struct {
		name string
		opts HandlerOptions
		want bool
	}{
		{name: "no scheduler", opts: HandlerOptions{AsyncThresholdBytes: 1}, want: false},
		{name: "bytes over", opts: HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 1000}, want: true},
		{name: "bytes under", opts: HandlerOptions{Scheduler: scheduler, AsyncThresholdBytes: 2000}, want: false},
		{name: "pages over", opts: HandlerOptions{Scheduler: scheduler, AsyncThresholdPages: 7}, want: true},
		{name: "pages equal", opts: HandlerOptions{Scheduler: scheduler, AsyncThresholdPages: 8}, want: false},
		{name: "no thresholds", opts: HandlerOptions{Scheduler: scheduler}, want: false},
	}
	for _, tc := range cases {
		if got := shouldProcessAsync(manifest, tc.opts); got != tc.want {
			t.Errorf("%s: shouldProcessAsync = %v, want %v", tc.name, got, tc.want)
		}
	}
}
