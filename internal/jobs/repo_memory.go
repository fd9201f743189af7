package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo keeps jobs in process memory. Used in dev when DATABASE_URL is unset.
type MemoryRepo struct {
	mu   sync.RWMutex
	data map[string]Job
}

// NewMemoryRepo constructs a MemoryRepo.
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{data: make(map[string]Job)}
}

func (r *MemoryRepo) Create(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	r.data[job.ID] = job
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.data[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return job, nil
}

func (r *MemoryRepo) MarkProcessing(ctx context.Context, id string, at time.Time) error {
	return r.update(ctx, id, func(job *Job) {
		job.Status = StatusProcessing
		job.UpdatedAt = at
	})
}

func (r *MemoryRepo) Complete(ctx context.Context, id string, out Outcome, at time.Time) error {
	return r.update(ctx, id, func(job *Job) {
		job.Status = StatusCompleted
		job.Result = out.Result
		job.RawOCR = out.RawOCR
		job.Degraded = out.Degraded
		job.TypeMismatches = out.TypeMismatches
		job.ErrorCode = ""
		job.ErrorMessage = ""
		job.UpdatedAt = at
		job.CompletedAt = &at
	})
}

func (r *MemoryRepo) Fail(ctx context.Context, id, code, message string, at time.Time) error {
	return r.update(ctx, id, func(job *Job) {
		job.Status = StatusFailed
		job.ErrorCode = code
		job.ErrorMessage = message
		job.UpdatedAt = at
		job.CompletedAt = &at
	})
}

func (r *MemoryRepo) update(ctx context.Context, id string, apply func(*Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.data[id]
	if !ok {
		return ErrNotFound
	}
	apply(&job)
	r.data[id] = job
	return nil
}

var _ Repo = (*MemoryRepo)(nil)
