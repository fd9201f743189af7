package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"docparse-backend/internal/fields"
	"docparse-backend/internal/jobs"
	"docparse-backend/internal/ocr"
	"docparse-backend/internal/queue"
	"docparse-backend/internal/shared/server/middleware"
	"docparse-backend/internal/shared/storage/object/local"
)

type fakeBackend struct {
	text  string
	err   error
	calls int
	path  string
}

func (f *fakeBackend) Extract(ctx context.Context, path string) (string, error) {
	f.calls++
	f.path = path
	return f.text, f.err
}

type fakeCompleter struct {
	reply string
	err   error
	calls int
	user  string
}

func (f *fakeCompleter) CompleteJSON(ctx context.Context, system, user string) (string, error) {
	f.calls++
	f.user = user
	return f.reply, f.err
}

type fakeQueue struct {
	sent []queue.Message
	err  error
}

func (f *fakeQueue) Send(ctx context.Context, msg queue.Message) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type testEnv struct {
	router  *gin.Engine
	svc     *Service
	repo    *jobs.MemoryRepo
	backend *fakeBackend
	model   *fakeCompleter
}

func newTestEnv(t *testing.T, maxUpload int64) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	backend := &fakeBackend{}
	model := &fakeCompleter{}
	registry := ocr.NewRegistry()
	registry.Register(ocr.KindLocal, backend)
	registry.Register(ocr.KindVision, backend)
	repo := jobs.NewMemoryRepo()

	svc := &Service{
		Store:    local.New(t.TempDir()),
		Backends: registry,
		Fields:   fields.NewExtractor(model, time.Second),
		Jobs:     repo,
	}

	r := gin.New()
	r.Use(middleware.RequestID())
	NewHandler(svc, maxUpload).RegisterRoutes(r)

	return &testEnv{router: r, svc: svc, repo: repo, backend: backend, model: model}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) upload(t *testing.T, name string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	fileWriter, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fileWriter.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/file-upload", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return e.do(req)
}

func (e *testEnv) uploadID(t *testing.T) string {
	t.Helper()
	resp := e.upload(t, "invoice.pdf", []byte("%PDF-1.4 fake"))
	if resp.Code != http.StatusOK {
		t.Fatalf("upload status %d: %s", resp.Code, resp.Body.String())
	}
	var out struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	return out.FileID
}

func (e *testEnv) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

const invoiceFields = `{"invoice_no":{"name":"Invoice","description":"invoice number","type":"string"},"amount":{"name":"Amount","description":"total","type":"float"}}`

func ocrBody(fileID, backend, fieldsJSON string) string {
	return `{"file_id":"` + fileID + `","ocr":"` + backend + `","fields":` + fieldsJSON + `}`
}

func errorCode(t *testing.T, resp *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, resp.Body.String())
	}
	return body.Error.Code
}

func TestUploadStoresFileUnderReturnedID(t *testing.T) {
	env := newTestEnv(t, 0)
	content := []byte("hello world")

	resp := env.upload(t, "scan.png", content)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var out struct {
		FileID string `json:"file_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}

	path, err := env.svc.Store.Resolve(context.Background(), out.FileID)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !strings.HasSuffix(path, out.FileID+".png") {
		t.Fatalf("unexpected path %q", path)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Fatalf("stored bytes differ: %q", got)
	}
}

func TestUploadRequiresFile(t *testing.T) {
	env := newTestEnv(t, 0)
	req := httptest.NewRequest(http.MethodPost, "/file-upload", strings.NewReader(""))
	resp := env.do(req)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "validation_error" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestUploadRejectsOversizedBody(t *testing.T) {
	env := newTestEnv(t, 64)
	resp := env.upload(t, "big.pdf", bytes.Repeat([]byte("x"), 4096))
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestOCRUnknownFileWinsOverBadSelector(t *testing.T) {
	env := newTestEnv(t, 0)
	resp := env.postJSON("/ocr", ocrBody("does-not-exist", "bogus", invoiceFields))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
	if env.backend.calls != 0 || env.model.calls != 0 {
		t.Fatalf("pipeline should not run")
	}
}

func TestOCRRejectsUnsupportedBackend(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)

	resp := env.postJSON("/ocr", ocrBody(id, "tesseract", invoiceFields))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "unsupported_backend" {
		t.Fatalf("unexpected code %q", code)
	}
	if env.backend.calls != 0 {
		t.Fatalf("backend should not run")
	}
}

func TestOCRRequiresFields(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)

	resp := env.postJSON("/ocr", `{"file_id":"`+id+`","ocr":"easyocr"}`)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestOCRRejectsMalformedFields(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)

	resp := env.postJSON("/ocr", ocrBody(id, "easyocr", `{"a":{"name":"A"}}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestOCRReturnsFieldsInRequestOrder(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)
	env.backend.text = "INVOICE 12345\nTOTAL 10.50"
	env.model.reply = `{"amount": 10.50, "invoice_no": "12345", "extra": true}`

	resp := env.postJSON("/ocr", ocrBody(id, "easyocr", invoiceFields))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := resp.Body.String()
	if !strings.Contains(body, `"result":{"invoice_no":"12345","amount":10.50}`) {
		t.Fatalf("unexpected result %s", body)
	}

	var out struct {
		FileID   string `json:"file_id"`
		OCR      string `json:"ocr"`
		RawOCR   string `json:"raw_ocr"`
		Degraded bool   `json:"degraded"`
		JobID    string `json:"job_id"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.FileID != id || out.OCR != "easyocr" || out.RawOCR != env.backend.text || out.Degraded {
		t.Fatalf("unexpected response %+v", out)
	}
	if !strings.Contains(env.model.user, "INVOICE 12345") {
		t.Fatalf("prompt missing OCR text")
	}

	job, err := env.repo.Get(context.Background(), out.JobID)
	if err != nil {
		t.Fatalf("job: %v", err)
	}
	if job.Status != jobs.StatusCompleted || job.RawOCR != env.backend.text {
		t.Fatalf("unexpected job %+v", job)
	}
}

func TestOCREmptyFieldsSkipsModel(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)
	env.backend.text = "INVOICE 12345"

	resp := env.postJSON("/ocr", ocrBody(id, "llm_ocr", `{}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"result":{}`) {
		t.Fatalf("expected empty result, got %s", resp.Body.String())
	}
	if env.model.calls != 0 {
		t.Fatalf("model should not be called")
	}
}

func TestOCRMalformedModelReplyIsDegraded(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)
	env.backend.text = "INVOICE 12345"
	env.model.reply = "sorry, I cannot help"

	resp := env.postJSON("/ocr", ocrBody(id, "easyocr", invoiceFields))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `"result":{"invoice_no":null,"amount":null}`) || !strings.Contains(body, `"degraded":true`) {
		t.Fatalf("unexpected body %s", body)
	}
}

func TestOCRExtractionFailureReportsPage(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)
	env.backend.err = &ocr.ExtractionError{Backend: ocr.KindVision, Page: 2, Err: errors.New("timeout")}

	resp := env.postJSON("/ocr", ocrBody(id, "llm_ocr", invoiceFields))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	var body struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != "extraction_failed" || body.Error.Details["page"] != float64(2) {
		t.Fatalf("unexpected error %+v", body.Error)
	}
	if env.model.calls != 0 {
		t.Fatalf("field extraction must not run after OCR failure")
	}
}

func TestOCRFieldModelFailure(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)
	env.backend.text = "INVOICE 12345"
	env.model.err = errors.New("upstream 502")

	resp := env.postJSON("/ocr", ocrBody(id, "easyocr", invoiceFields))
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
	if code := errorCode(t, resp); code != "extraction_failed" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestEnqueueWithoutQueue(t *testing.T) {
	env := newTestEnv(t, 0)
	id := env.uploadID(t)

	resp := env.postJSON("/ocr/jobs", ocrBody(id, "easyocr", invoiceFields))
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestEnqueueProcessAndExport(t *testing.T) {
	env := newTestEnv(t, 0)
	q := &fakeQueue{}
	env.svc.Queue = q
	id := env.uploadID(t)
	env.backend.text = "INVOICE 12345"
	env.model.reply = `{"invoice_no":"12345","amount":10.5}`

	resp := env.postJSON("/ocr/jobs", ocrBody(id, "easyocr", invoiceFields))
	if resp.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", resp.Code, resp.Body.String())
	}
	var queued struct {
		JobID  string `json:"job_id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &queued); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if queued.Status != jobs.StatusQueued || len(q.sent) != 1 || q.sent[0].JobID != queued.JobID {
		t.Fatalf("unexpected enqueue %+v %+v", queued, q.sent)
	}
	if env.backend.calls != 0 {
		t.Fatalf("enqueue must not run OCR")
	}

	exportPath := "/ocr/jobs/" + queued.JobID + "/export"
	if resp := env.do(httptest.NewRequest(http.MethodGet, exportPath, nil)); resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", resp.Code)
	}

	if err := env.svc.ProcessJob(context.Background(), queued.JobID, q.sent[0].RequestID); err != nil {
		t.Fatalf("ProcessJob: %v", err)
	}

	resp = env.do(httptest.NewRequest(http.MethodGet, "/ocr/jobs/"+queued.JobID, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	body := resp.Body.String()
	if !strings.Contains(body, `"status":"completed"`) || !strings.Contains(body, `"result":{"invoice_no":"12345","amount":10.5}`) {
		t.Fatalf("unexpected job body %s", body)
	}

	resp = env.do(httptest.NewRequest(http.MethodGet, exportPath, nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Fatalf("unexpected content type %q", ct)
	}
	if resp.Body.Len() == 0 {
		t.Fatalf("empty workbook")
	}
}

func TestGetUnknownJob(t *testing.T) {
	env := newTestEnv(t, 0)
	resp := env.do(httptest.NewRequest(http.MethodGet, "/ocr/jobs/nope", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
