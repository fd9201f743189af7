package object

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"docparse-backend/internal/shared/util"
)

// ErrNotFound is returned when no stored object matches an identifier.
var ErrNotFound = errors.New("object not found")

// Object describes a stored upload.
type Object struct {
	ID        string
	Name      string
	SizeBytes int64
	MimeType  string
}

// Store persists uploads under generated identifiers and resolves them to local paths.
type Store interface {
	Save(ctx context.Context, fileName string, r io.Reader) (Object, error)
	Resolve(ctx context.Context, id string) (string, error)
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// NewID returns a fresh random (version 4) identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a canonical 36-character UUID.
// Anything else can never match a stored name, and rejecting it keeps
// prefix scans from matching on short or crafted input.
func ValidID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// StorageName derives the stored name: identifier plus the original extension.
func StorageName(id, fileName string) string {
	return id + util.FileExt(fileName)
}
