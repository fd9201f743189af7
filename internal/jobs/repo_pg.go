package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Create inserts a new job.
func (r *PGRepo) Create(ctx context.Context, job Job) error {
	const query = `
INSERT INTO ocr_jobs (
    id,
    file_id,
    ocr,
    status,
    fields,
    request_id,
    created_at,
    updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	fieldsJSON, err := json.Marshal(job.Fields)
	if err != nil {
		return fmt.Errorf("encode fields: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		job.ID,
		job.FileID,
		job.OCR,
		job.Status,
		string(fieldsJSON),
		nullString(job.RequestID),
		job.CreatedAt,
	)
	return err
}

// Get returns a job by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Job, error) {
	const query = `
SELECT id, file_id, ocr, status, fields, result, raw_ocr, degraded, type_mismatches,
       error_code, error_message, request_id, created_at, updated_at, completed_at
FROM ocr_jobs
WHERE id = $1`

	var (
		job          Job
		fieldsRaw    []byte
		resultRaw    []byte
		mismatchRaw  []byte
		errorCode    sql.NullString
		errorMessage sql.NullString
		requestID    sql.NullString
		completedAt  sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&job.ID,
		&job.FileID,
		&job.OCR,
		&job.Status,
		&fieldsRaw,
		&resultRaw,
		&job.RawOCR,
		&job.Degraded,
		&mismatchRaw,
		&errorCode,
		&errorMessage,
		&requestID,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}

	if err := json.Unmarshal(fieldsRaw, &job.Fields); err != nil {
		return Job{}, fmt.Errorf("decode fields for job %s: %w", id, err)
	}
	if len(resultRaw) > 0 {
		if err := json.Unmarshal(resultRaw, &job.Result); err != nil {
			return Job{}, fmt.Errorf("decode result for job %s: %w", id, err)
		}
	}
	if len(mismatchRaw) > 0 {
		if err := json.Unmarshal(mismatchRaw, &job.TypeMismatches); err != nil {
			return Job{}, fmt.Errorf("decode type mismatches for job %s: %w", id, err)
		}
	}
	job.ErrorCode = errorCode.String
	job.ErrorMessage = errorMessage.String
	job.RequestID = requestID.String
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	return job, nil
}

// MarkProcessing moves a job to processing.
func (r *PGRepo) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE ocr_jobs
SET status = $2, updated_at = $3
WHERE id = $1`
	return r.exec(ctx, query, id, StatusProcessing, at)
}

// Complete stores a successful outcome.
func (r *PGRepo) Complete(ctx context.Context, id string, out Outcome, at time.Time) error {
	const query = `
UPDATE ocr_jobs
SET status = $2,
    result = $3,
    raw_ocr = $4,
    degraded = $5,
    type_mismatches = $6,
    error_code = NULL,
    error_message = NULL,
    updated_at = $7,
    completed_at = $7
WHERE id = $1`

	resultJSON, err := json.Marshal(out.Result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	var mismatches any
	if len(out.TypeMismatches) > 0 {
		raw, err := json.Marshal(out.TypeMismatches)
		if err != nil {
			return fmt.Errorf("encode type mismatches: %w", err)
		}
		mismatches = string(raw)
	}
	return r.exec(ctx, query, id, StatusCompleted, string(resultJSON), out.RawOCR, out.Degraded, mismatches, at)
}

// Fail records a failed run.
func (r *PGRepo) Fail(ctx context.Context, id, code, message string, at time.Time) error {
	const query = `
UPDATE ocr_jobs
SET status = $2,
    error_code = $3,
    error_message = $4,
    updated_at = $5,
    completed_at = $5
WHERE id = $1`
	return r.exec(ctx, query, id, StatusFailed, nullString(code), nullString(message), at)
}

func (r *PGRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ Repo = (*PGRepo)(nil)
