package documents

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docparse-backend/internal/export"
	"docparse-backend/internal/jobs"
	"docparse-backend/internal/ocr"
	"docparse-backend/internal/shared/server/middleware"
	"docparse-backend/internal/shared/server/respond"
	"docparse-backend/internal/shared/storage/object"
)

const (
	defaultMaxUploadSize = 20 << 20 // 20MB
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc           *Service
	MaxUploadSize int64
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, maxUploadSize int64) *Handler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &Handler{Svc: svc, MaxUploadSize: maxUploadSize}
}

// RegisterRoutes attaches upload, OCR and job routes.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.POST("/file-upload", h.upload)
	r.POST("/ocr", h.runOCR)
	r.POST("/ocr/jobs", h.enqueue)
	r.GET("/ocr/jobs/:id", h.getJob)
	r.GET("/ocr/jobs/:id/export", h.exportJob)
}

func (h *Handler) upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadSize)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		if tooLarge(err) {
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeTooLarge, "file exceeds upload limit", gin.H{"max_bytes": h.MaxUploadSize})
			return
		}
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file is required", nil)
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "unable to read file", nil)
		return
	}
	defer file.Close()

	obj, err := h.Svc.Upload(c.Request.Context(), fileHeader.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInput):
			respond.Error(c, http.StatusBadRequest, respond.CodeValidation, err.Error(), nil)
		case tooLarge(err):
			respond.Error(c, http.StatusRequestEntityTooLarge, respond.CodeTooLarge, "file exceeds upload limit", gin.H{"max_bytes": h.MaxUploadSize})
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to store file", nil)
		}
		return
	}

	c.Set("fileId", obj.ID)
	respond.OK(c, uploadResponse{FileID: obj.ID})
}

func (h *Handler) bindOCR(c *gin.Context) (OCRRequest, bool) {
	var body ocrRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "invalid request body", gin.H{"reason": err.Error()})
		return OCRRequest{}, false
	}
	body.FileID = strings.TrimSpace(body.FileID)
	if body.FileID == "" {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "file_id is required", nil)
		return OCRRequest{}, false
	}
	if body.Fields == nil {
		respond.Error(c, http.StatusBadRequest, respond.CodeValidation, "fields is required", nil)
		return OCRRequest{}, false
	}
	c.Set("fileId", body.FileID)
	c.Set("ocrBackend", body.OCR)
	return OCRRequest{
		FileID:    body.FileID,
		OCR:       body.OCR,
		Fields:    *body.Fields,
		RequestID: middleware.RequestIDFromContext(c),
	}, true
}

func (h *Handler) runOCR(c *gin.Context) {
	req, ok := h.bindOCR(c)
	if !ok {
		return
	}

	res, err := h.Svc.Run(c.Request.Context(), req)
	if res.JobID != "" {
		c.Set("jobId", res.JobID)
	}
	if err != nil {
		h.pipelineError(c, err)
		return
	}

	respond.OK(c, toOCRResponse(res))
}

func (h *Handler) enqueue(c *gin.Context) {
	req, ok := h.bindOCR(c)
	if !ok {
		return
	}

	job, err := h.Svc.Enqueue(c.Request.Context(), req)
	if err != nil {
		h.pipelineError(c, err)
		return
	}

	c.Set("jobId", job.ID)
	respond.Accepted(c, enqueueResponse{JobID: job.ID, Status: job.Status})
}

func (h *Handler) getJob(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)

	job, err := h.Svc.Job(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "job not found", nil)
			return
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to fetch job", nil)
		return
	}

	respond.OK(c, toJobResponse(job))
}

func (h *Handler) exportJob(c *gin.Context) {
	id := c.Param("id")
	c.Set("jobId", id)

	job, data, err := h.Svc.Export(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "job not found", nil)
		case errors.Is(err, export.ErrNotCompleted):
			respond.Error(c, http.StatusConflict, respond.CodeConflict, "job not completed", gin.H{"status": job.Status})
		default:
			respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to export job", nil)
		}
		return
	}

	c.Header("Content-Disposition", `attachment; filename="ocr-`+job.ID+`.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}

func (h *Handler) pipelineError(c *gin.Context, err error) {
	var extractErr *ocr.ExtractionError
	switch {
	case errors.Is(err, object.ErrNotFound):
		respond.Error(c, http.StatusNotFound, respond.CodeNotFound, "file not found", nil)
	case errors.Is(err, ocr.ErrUnsupportedBackend):
		respond.Error(c, http.StatusBadRequest, respond.CodeUnsupportedBackend, "unsupported ocr backend", gin.H{"supported": h.Svc.Backends.Kinds()})
	case errors.Is(err, ErrQueueNotConfigured):
		respond.Error(c, http.StatusServiceUnavailable, respond.CodeUnavailable, "job queue not configured", nil)
	case errors.As(err, &extractErr):
		details := gin.H{"backend": extractErr.Backend}
		if extractErr.Page > 0 {
			details["page"] = extractErr.Page
		}
		respond.Error(c, http.StatusInternalServerError, respond.CodeExtractionFailed, "ocr extraction failed", details)
	case errors.Is(err, ocr.ErrExtractionFailed):
		respond.Error(c, http.StatusInternalServerError, respond.CodeExtractionFailed, "field extraction failed", nil)
	default:
		respond.Error(c, http.StatusInternalServerError, respond.CodeInternal, "failed to process document", nil)
	}
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
