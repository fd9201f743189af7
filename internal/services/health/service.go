package health

import (
	"context"
	"time"
)

const pingTimeout = 2 * time.Second

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Service reports process and database health.
type Service struct {
	DB Pinger
}

// NewService constructs a health service. db may be nil when jobs are kept in memory.
func NewService(db Pinger) *Service {
	return &Service{DB: db}
}

// Status returns the health payload. The process is healthy while it can
// answer; db is "up", "down" or "memory".
func (s *Service) Status(ctx context.Context) map[string]any {
	out := map[string]any{"ok": true, "db": "memory"}
	if s == nil || s.DB == nil {
		return out
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		out["db"] = "down"
		return out
	}
	out["db"] = "up"
	return out
}
