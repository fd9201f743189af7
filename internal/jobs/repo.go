package jobs

import (
	"context"
	"time"
)

// Repo persists jobs.
type Repo interface {
	Create(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	MarkProcessing(ctx context.Context, id string, at time.Time) error
	Complete(ctx context.Context, id string, out Outcome, at time.Time) error
	Fail(ctx context.Context, id, code, message string, at time.Time) error
}
