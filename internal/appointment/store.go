package appointment

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups and mutations for an
// unknown appointment ID.
var ErrNotFound = errors.New("appointment not found")

// Store is the persistence interface for appointments.
//
// Mutate must apply fn as an atomic read-modify-write on a single row:
// no other mutation of the same row may interleave between the read and
// the write. If fn returns an error the row is left unchanged and the
// error is returned verbatim.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id string) (*Appointment, bool, error)

	// List returns all appointments ordered by scheduled time ascending.
	List(ctx context.Context) ([]*Appointment, error)

	// ListByStatus returns appointments in the given status, ordered by
	// scheduled time ascending.
	ListByStatus(ctx context.Context, st Status) ([]*Appointment, error)

	// Mutate atomically applies fn to the row with the given ID and
	// persists the result. Returns ErrNotFound for an unknown ID.
	Mutate(ctx context.Context, id string, fn func(*Appointment) error) (*Appointment, error)

	// ResetAll returns every row to Scheduled with risk and reasons
	// cleared, as one logical operation. Returns the number of rows.
	ResetAll(ctx context.Context) (int, error)

	// ActionQueue returns unresolved appointments with risk above
	// HighRiskThreshold, ordered by risk descending then scheduled time
	// ascending.
	ActionQueue(ctx context.Context) ([]*Appointment, error)

	// KPIStats computes the dashboard aggregates from current rows.
	KPIStats(ctx context.Context) (*KPIStats, error)
}
