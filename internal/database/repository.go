package database

import (
	"context"
	"errors"
	"time"

	"github.com/callscope/callscope/internal/database/models"
)

// ErrSourceUnavailable marks a failed CDR read. A run must abort on it:
// the engine refuses to reconcile a truncated input set into misleading
// partial sessions.
var ErrSourceUnavailable = errors.New("cdr source unavailable")

// LegFilter narrows a raw-leg query. Zero values mean "no constraint".
type LegFilter struct {
	Start        time.Time
	End          time.Time
	UniqueID     string
	Dispositions []string
}

// LegSource provides raw CDR legs for reconciliation runs.
type LegSource interface {
	// ListLegs returns the legs matching the filter, ordered by call time
	// ascending. A query failure wraps ErrSourceUnavailable.
	ListLegs(ctx context.Context, filter LegFilter) ([]models.RawLeg, error)
	// InsertLeg stores one raw leg (imports and tests).
	InsertLeg(ctx context.Context, leg *models.RawLeg) error
	// CountByDisposition returns leg counts grouped by disposition.
	CountByDisposition(ctx context.Context) (map[string]int64, error)
	// CountRecordings returns the number of legs carrying a recording.
	CountRecordings(ctx context.Context) (int64, error)
	// DeleteExpiredRecordings clears recording references older than the
	// given number of days and returns them so the files can be removed.
	DeleteExpiredRecordings(ctx context.Context, days int) ([]models.ExpiredRecording, error)
}
