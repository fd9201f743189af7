package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"docparse-backend/internal/shared/telemetry"
)

// Runner lets tests stub external commands.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	if err != nil {
		telemetry.Error("exec.failed", map[string]any{
			"cmd":        name,
			"args":       strings.Join(args, " "),
			"durationMs": time.Since(start).Milliseconds(),
			"error":      err,
			"stderr":     truncate(errb.String(), 8<<10),
		})
	}
	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "...(truncated)"
}
