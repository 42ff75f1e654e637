package record

import (
	"context"
	"errors"

	"github.com/aperez/cmb-readout/internal/domain/run"
)

// Repository defines persistence operations for run records.
// Save is atomic: a record is written wholly or not at all.
type Repository interface {
	// Save persists a finished record. Records are terminal, so Save of an
	// existing ref is never performed by callers.
	Save(ctx context.Context, record *run.Record) error
	// Load reads one record by reference (a file path or a run ID,
	// depending on the backend).
	Load(ctx context.Context, ref string) (*run.Record, error)
	// List returns references of all stored records, oldest first.
	List(ctx context.Context) ([]string, error)
}

// ErrNotFound is returned when the referenced record does not exist.
var ErrNotFound = errors.New("run record not found")
