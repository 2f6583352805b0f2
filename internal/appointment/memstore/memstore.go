// Package memstore provides an in-memory implementation of
// appointment.Store. Suitable for dev/testing and the no-database
// deployment.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/linnemanlabs/attend/internal/appointment"
)

// Store holds appointments in memory. The single lock serializes all
// mutations, which trivially satisfies the per-row atomicity contract.
type Store struct {
	mu   sync.RWMutex
	rows map[string]*appointment.Appointment
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{rows: make(map[string]*appointment.Appointment)}
}

// clone copies a row so callers never share memory with the store.
func clone(a *appointment.Appointment) *appointment.Appointment {
	cp := *a
	if a.Risk != nil {
		r := *a.Risk
		cp.Risk = &r
	}
	if a.RiskReasons != nil {
		cp.RiskReasons = append([]string(nil), a.RiskReasons...)
	}
	return &cp
}

// Create stores a copy of the appointment.
func (s *Store) Create(_ context.Context, a *appointment.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[a.ID] = clone(a)
	return nil
}

// Get retrieves an appointment by ID. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*appointment.Appointment, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, false, nil
	}
	return clone(a), true, nil
}

// List returns all appointments ordered by scheduled time ascending.
func (s *Store) List(_ context.Context) ([]*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*appointment.Appointment) bool { return true }), nil
}

// ListByStatus returns appointments in the given status, ordered by
// scheduled time ascending.
func (s *Store) ListByStatus(_ context.Context, st appointment.Status) ([]*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(a *appointment.Appointment) bool { return a.Status == st }), nil
}

// collect copies matching rows sorted by scheduled time. Callers hold
// at least the read lock.
func (s *Store) collect(keep func(*appointment.Appointment) bool) []*appointment.Appointment {
	out := make([]*appointment.Appointment, 0, len(s.rows))
	for _, a := range s.rows {
		if keep(a) {
			out = append(out, clone(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out
}

// Mutate applies fn to the row under the write lock and persists the
// result. Returns appointment.ErrNotFound for an unknown ID; if fn
// errors the row is left unchanged.
func (s *Store) Mutate(_ context.Context, id string, fn func(*appointment.Appointment) error) (*appointment.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.rows[id]
	if !ok {
		return nil, appointment.ErrNotFound
	}

	next := clone(cur)
	if err := fn(next); err != nil {
		return nil, err
	}
	s.rows[id] = next
	return clone(next), nil
}

// ResetAll returns every row to Scheduled with risk and reasons
// cleared. Returns the number of rows.
func (s *Store) ResetAll(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.rows {
		a.Status = appointment.StatusScheduled
		a.Risk = nil
		a.RiskReasons = nil
	}
	return len(s.rows), nil
}

// ActionQueue returns unresolved high-risk appointments ordered by
// risk descending, ties broken by scheduled time ascending.
func (s *Store) ActionQueue(_ context.Context) ([]*appointment.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.collect(func(a *appointment.Appointment) bool {
		return a.HighRisk() && !a.Resolved()
	})
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].Risk > *out[j].Risk
	})
	return out, nil
}

// KPIStats computes the dashboard aggregates from current rows.
func (s *Store) KPIStats(_ context.Context) (*appointment.KPIStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &appointment.KPIStats{Total: len(s.rows)}
	for _, a := range s.rows {
		switch a.Status {
		case appointment.StatusConfirmed:
			st.Confirmed++
		case appointment.StatusScheduled, appointment.StatusConfirmationSent:
			st.Pending++
		}
		if a.HighRisk() {
			st.HighRisk++
		}
	}
	return st, nil
}
