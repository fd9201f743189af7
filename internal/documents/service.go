package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"docparse-backend/internal/export"
	"docparse-backend/internal/fields"
	"docparse-backend/internal/jobs"
	"docparse-backend/internal/ocr"
	"docparse-backend/internal/queue"
	"docparse-backend/internal/shared/metrics"
	"docparse-backend/internal/shared/storage/object"
	"docparse-backend/internal/shared/telemetry"
	"docparse-backend/internal/shared/util"
)

var (
	// ErrInvalidInput marks malformed request input.
	ErrInvalidInput = errors.New("invalid input")
	// ErrQueueNotConfigured is returned by Enqueue when no queue client is wired.
	ErrQueueNotConfigured = errors.New("queue not configured")
)

// Job error codes stored on failed jobs.
const (
	jobCodeNotFound         = "not_found"
	jobCodeUnsupported      = "unsupported_backend"
	jobCodeExtractionFailed = "extraction_failed"
	jobCodeInternal         = "internal"
)

// OCRRequest selects a stored document, a backend and the fields to extract.
type OCRRequest struct {
	FileID    string
	OCR       string
	Fields    fields.Schema
	RequestID string
}

// OCRResult is the combined outcome of one synchronous run.
type OCRResult struct {
	JobID          string
	FileID         string
	OCR            ocr.Kind
	Result         fields.Values
	RawOCR         string
	Degraded       bool
	TypeMismatches []string
}

// Service runs uploads, OCR and field extraction, and records jobs.
type Service struct {
	Store    object.Store
	Backends *ocr.Registry
	Fields   *fields.Extractor
	Jobs     jobs.Repo
	Queue    queue.Client
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Upload stores r under a fresh identifier.
func (s *Service) Upload(ctx context.Context, fileName string, r io.Reader) (object.Object, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return object.Object{}, fmt.Errorf("%w: file name required", ErrInvalidInput)
	}
	obj, err := s.Store.Save(ctx, fileName, r)
	if err != nil {
		return object.Object{}, err
	}
	metrics.IncUpload(obj.SizeBytes)
	logFields := map[string]any{
		"file_id":    obj.ID,
		"size_bytes": obj.SizeBytes,
		"mime_type":  obj.MimeType,
	}
	if name, err := util.SanitizeFileName(fileName); err == nil {
		logFields["file_name"] = name
	}
	telemetry.Info("upload.saved", logFields)
	return obj, nil
}

// resolve checks the document before the selector, so an unknown id wins
// over a bad backend name.
func (s *Service) resolve(ctx context.Context, fileID, selector string) (string, ocr.Kind, ocr.Backend, error) {
	path, err := s.Store.Resolve(ctx, strings.TrimSpace(fileID))
	if err != nil {
		return "", "", nil, err
	}
	kind, err := ocr.ParseKind(selector)
	if err != nil {
		return "", "", nil, err
	}
	backend, err := s.Backends.Get(kind)
	if err != nil {
		return "", "", nil, err
	}
	return path, kind, backend, nil
}

// Run performs OCR and field extraction synchronously and records the job.
func (s *Service) Run(ctx context.Context, req OCRRequest) (OCRResult, error) {
	path, kind, backend, err := s.resolve(ctx, req.FileID, req.OCR)
	if err != nil {
		return OCRResult{}, err
	}

	now := s.now()
	job := jobs.Job{
		ID:        uuid.NewString(),
		FileID:    strings.TrimSpace(req.FileID),
		OCR:       string(kind),
		Status:    jobs.StatusProcessing,
		Fields:    req.Fields,
		RequestID: req.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return OCRResult{}, fmt.Errorf("create job: %w", err)
	}

	out, err := s.pipeline(ctx, kind, backend, path, req.Fields)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return OCRResult{JobID: job.ID}, err
	}
	// The caller still gets the result when the job row cannot be completed.
	if err := s.Jobs.Complete(ctx, job.ID, out, s.now()); err != nil {
		telemetry.Error("job.complete.error", map[string]any{"job_id": job.ID, "error": err.Error()})
		s.fail(ctx, job.ID, fmt.Errorf("complete job: %w", err))
	} else {
		metrics.IncJob(jobs.StatusCompleted)
	}

	return OCRResult{
		JobID:          job.ID,
		FileID:         job.FileID,
		OCR:            kind,
		Result:         out.Result,
		RawOCR:         out.RawOCR,
		Degraded:       out.Degraded,
		TypeMismatches: out.TypeMismatches,
	}, nil
}

// Enqueue validates req like Run, stores a queued job and sends it to the worker queue.
func (s *Service) Enqueue(ctx context.Context, req OCRRequest) (jobs.Job, error) {
	_, kind, _, err := s.resolve(ctx, req.FileID, req.OCR)
	if err != nil {
		return jobs.Job{}, err
	}
	if s.Queue == nil {
		return jobs.Job{}, ErrQueueNotConfigured
	}

	now := s.now()
	job := jobs.Job{
		ID:        uuid.NewString(),
		FileID:    strings.TrimSpace(req.FileID),
		OCR:       string(kind),
		Status:    jobs.StatusQueued,
		Fields:    req.Fields,
		RequestID: req.RequestID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Jobs.Create(ctx, job); err != nil {
		return jobs.Job{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.Queue.Send(ctx, queue.NewMessage(job.ID, req.RequestID, now)); err != nil {
		if ferr := s.Jobs.Fail(ctx, job.ID, jobCodeInternal, "enqueue failed", s.now()); ferr != nil {
			telemetry.Error("job.fail.error", map[string]any{"job_id": job.ID, "error": ferr.Error()})
		}
		return jobs.Job{}, fmt.Errorf("enqueue job: %w", err)
	}
	metrics.IncJob(jobs.StatusQueued)
	telemetry.Info("job.enqueued", map[string]any{
		"job_id":     job.ID,
		"file_id":    job.FileID,
		"ocr":        job.OCR,
		"request_id": req.RequestID,
	})
	return job, nil
}

// Job returns a stored job.
func (s *Service) Job(ctx context.Context, id string) (jobs.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return jobs.Job{}, jobs.ErrNotFound
	}
	return s.Jobs.Get(ctx, id)
}

// Export renders a completed job as an XLSX workbook.
func (s *Service) Export(ctx context.Context, id string) (jobs.Job, []byte, error) {
	job, err := s.Job(ctx, id)
	if err != nil {
		return jobs.Job{}, nil, err
	}
	data, err := export.Workbook(job)
	if err != nil {
		return job, nil, err
	}
	return job, data, nil
}

// ProcessJob runs a queued job. Pipeline failures are stored on the job and
// reported as success so the message is not redelivered; repository errors
// are returned.
func (s *Service) ProcessJob(ctx context.Context, jobID, requestID string) error {
	job, err := s.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		telemetry.Info("worker.job.skip", map[string]any{
			"job_id":     job.ID,
			"status":     job.Status,
			"request_id": requestID,
		})
		return nil
	}
	if err := s.Jobs.MarkProcessing(ctx, job.ID, s.now()); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	metrics.IncJob(jobs.StatusProcessing)

	path, kind, backend, err := s.resolve(ctx, job.FileID, job.OCR)
	if err != nil {
		if errors.Is(err, object.ErrNotFound) || errors.Is(err, ocr.ErrUnsupportedBackend) {
			return s.failJob(ctx, job.ID, err)
		}
		return fmt.Errorf("resolve document: %w", err)
	}
	out, err := s.pipeline(ctx, kind, backend, path, job.Fields)
	if err != nil {
		return s.failJob(ctx, job.ID, err)
	}
	if err := s.Jobs.Complete(ctx, job.ID, out, s.now()); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	metrics.IncJob(jobs.StatusCompleted)
	telemetry.Info("worker.job.completed", map[string]any{
		"job_id":     job.ID,
		"request_id": requestID,
		"degraded":   out.Degraded,
	})
	return nil
}

func (s *Service) pipeline(ctx context.Context, kind ocr.Kind, backend ocr.Backend, path string, schema fields.Schema) (jobs.Outcome, error) {
	start := time.Now()
	raw, err := backend.Extract(ctx, path)
	metrics.ObserveOCRMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.IncOCR(string(kind), "error")
		if !errors.Is(err, ocr.ErrExtractionFailed) {
			err = &ocr.ExtractionError{Backend: kind, Err: err}
		}
		return jobs.Outcome{}, err
	}
	metrics.IncOCR(string(kind), "ok")

	start = time.Now()
	res, err := s.Fields.Extract(ctx, raw, schema)
	metrics.ObserveFieldsMs(float64(time.Since(start).Milliseconds()))
	if err != nil {
		return jobs.Outcome{}, err
	}
	if res.Degraded {
		metrics.IncFieldsDegraded()
	}
	return jobs.Outcome{
		Result:         res.Values,
		RawOCR:         raw,
		Degraded:       res.Degraded,
		TypeMismatches: res.TypeMismatches,
	}, nil
}

func (s *Service) failJob(ctx context.Context, id string, cause error) error {
	code, msg := jobError(cause)
	if err := s.Jobs.Fail(ctx, id, code, msg, s.now()); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	metrics.IncJob(jobs.StatusFailed)
	telemetry.Warn("job.failed", map[string]any{"job_id": id, "code": code, "error": msg})
	return nil
}

// fail records a failed run without masking the original error.
func (s *Service) fail(ctx context.Context, id string, cause error) {
	if err := s.failJob(ctx, id, cause); err != nil {
		telemetry.Error("job.fail.error", map[string]any{"job_id": id, "error": err.Error()})
	}
}

func jobError(err error) (string, string) {
	switch {
	case errors.Is(err, object.ErrNotFound):
		return jobCodeNotFound, "document not found"
	case errors.Is(err, ocr.ErrUnsupportedBackend):
		return jobCodeUnsupported, err.Error()
	case errors.Is(err, ocr.ErrExtractionFailed):
		return jobCodeExtractionFailed, err.Error()
	default:
		return jobCodeInternal, err.Error()
	}
}
