package documents

import (
	"time"

	"docparse-backend/internal/fields"
	"docparse-backend/internal/jobs"
)

type uploadResponse struct {
	FileID string `json:"file_id"`
}

type ocrRequest struct {
	FileID string         `json:"file_id"`
	OCR    string         `json:"ocr"`
	Fields *fields.Schema `json:"fields"`
}

type ocrResponse struct {
	FileID         string        `json:"file_id"`
	OCR            string        `json:"ocr"`
	Result         fields.Values `json:"result"`
	RawOCR         string        `json:"raw_ocr"`
	Degraded       bool          `json:"degraded"`
	TypeMismatches []string      `json:"type_mismatches,omitempty"`
	JobID          string        `json:"job_id"`
}

type enqueueResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type jobErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobResponse is the outward-facing representation of a job.
type JobResponse struct {
	JobID          string         `json:"job_id"`
	FileID         string         `json:"file_id"`
	OCR            string         `json:"ocr"`
	Status         string         `json:"status"`
	Fields         fields.Schema  `json:"fields"`
	Result         *fields.Values `json:"result,omitempty"`
	RawOCR         *string        `json:"raw_ocr,omitempty"`
	Degraded       bool           `json:"degraded"`
	TypeMismatches []string       `json:"type_mismatches,omitempty"`
	Error          *jobErrorBody  `json:"error,omitempty"`
	RequestID      string         `json:"request_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
}

func toOCRResponse(res OCRResult) ocrResponse {
	return ocrResponse{
		FileID:         res.FileID,
		OCR:            string(res.OCR),
		Result:         res.Result,
		RawOCR:         res.RawOCR,
		Degraded:       res.Degraded,
		TypeMismatches: res.TypeMismatches,
		JobID:          res.JobID,
	}
}

func toJobResponse(job jobs.Job) JobResponse {
	resp := JobResponse{
		JobID:          job.ID,
		FileID:         job.FileID,
		OCR:            job.OCR,
		Status:         job.Status,
		Fields:         job.Fields,
		Degraded:       job.Degraded,
		TypeMismatches: job.TypeMismatches,
		RequestID:      job.RequestID,
		CreatedAt:      job.CreatedAt,
		UpdatedAt:      job.UpdatedAt,
		CompletedAt:    job.CompletedAt,
	}
	if job.Status == jobs.StatusCompleted {
		result := job.Result
		raw := job.RawOCR
		resp.Result = &result
		resp.RawOCR = &raw
	}
	if job.Status == jobs.StatusFailed {
		resp.Error = &jobErrorBody{Code: job.ErrorCode, Message: job.ErrorMessage}
	}
	return resp
}
