package memstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/linnemanlabs/attend/internal/appointment"
)

func seed(t *testing.T, s *Store, a *appointment.Appointment) {
	t.Helper()
	if err := s.Create(context.Background(), a); err != nil {
		t.Fatalf("Create %s: %v", a.ID, err)
	}
}

func riskPtr(v float64) *float64 { return &v }

func TestGet_ReturnsCopy(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &appointment.Appointment{
		ID:          "a-1",
		Status:      appointment.StatusConfirmationSent,
		Risk:        riskPtr(0.8),
		RiskReasons: []string{"prior no-shows"},
	})

	a, ok, err := s.Get(context.Background(), "a-1")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}

	// Mutating the returned value must not leak into the store.
	*a.Risk = 0.1
	a.RiskReasons[0] = "changed"
	a.Status = appointment.StatusSkipped

	b, _, _ := s.Get(context.Background(), "a-1")
	if *b.Risk != 0.8 || b.RiskReasons[0] != "prior no-shows" || b.Status != appointment.StatusConfirmationSent {
		t.Errorf("store row mutated through a returned copy: %+v", b)
	}
}

func TestGet_Unknown(t *testing.T) {
	t.Parallel()

	s := New()
	a, ok, err := s.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok || a != nil {
		t.Errorf("Get = %v, %v, want nil, false", a, ok)
	}
}

func TestList_OrderedByScheduledTime(t *testing.T) {
	t.Parallel()

	s := New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed(t, s, &appointment.Appointment{ID: "late", ScheduledAt: base.Add(2 * time.Hour), Status: appointment.StatusScheduled})
	seed(t, s, &appointment.Appointment{ID: "early", ScheduledAt: base, Status: appointment.StatusScheduled})
	seed(t, s, &appointment.Appointment{ID: "mid", ScheduledAt: base.Add(time.Hour), Status: appointment.StatusConfirmed})

	rows, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := []string{rows[0].ID, rows[1].ID, rows[2].ID}
	want := []string{"early", "mid", "late"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}

	byStatus, err := s.ListByStatus(context.Background(), appointment.StatusScheduled)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(byStatus) != 2 || byStatus[0].ID != "early" || byStatus[1].ID != "late" {
		t.Errorf("ListByStatus = %v", byStatus)
	}
}

func TestMutate(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &appointment.Appointment{ID: "m-1", Status: appointment.StatusScheduled})

	a, err := s.Mutate(context.Background(), "m-1", func(cur *appointment.Appointment) error {
		cur.Status = appointment.StatusConfirmationSent
		cur.Risk = riskPtr(0.75)
		return nil
	})
	if err != nil {
		t.Fatalf("Mutate: %v", err)
	}
	if a.Status != appointment.StatusConfirmationSent || *a.Risk != 0.75 {
		t.Errorf("returned = %+v", a)
	}

	got, _, _ := s.Get(context.Background(), "m-1")
	if got.Status != appointment.StatusConfirmationSent || *got.Risk != 0.75 {
		t.Errorf("persisted = %+v", got)
	}
}

func TestMutate_UnknownID(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.Mutate(context.Background(), "nope", func(*appointment.Appointment) error { return nil })
	if !errors.Is(err, appointment.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMutate_FnErrorLeavesRowUnchanged(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &appointment.Appointment{ID: "m-2", Status: appointment.StatusScheduled})

	boom := errors.New("rejected")
	_, err := s.Mutate(context.Background(), "m-2", func(cur *appointment.Appointment) error {
		cur.Status = appointment.StatusConfirmed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}

	a, _, _ := s.Get(context.Background(), "m-2")
	if a.Status != appointment.StatusScheduled {
		t.Errorf("Status = %q, row must be unchanged after fn error", a.Status)
	}
}

func TestResetAll(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &appointment.Appointment{ID: "r-1", Status: appointment.StatusConfirmed, Risk: riskPtr(0.9), RiskReasons: []string{"x"}})
	seed(t, s, &appointment.Appointment{ID: "r-2", Status: appointment.StatusSkipped})

	n, err := s.ResetAll(context.Background())
	if err != nil {
		t.Fatalf("ResetAll: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}

	rows, _ := s.List(context.Background())
	for _, a := range rows {
		if a.Status != appointment.StatusScheduled || a.Risk != nil || a.RiskReasons != nil {
			t.Errorf("%s = %+v, want pristine Scheduled", a.ID, a)
		}
	}
}

func TestActionQueue_Ordering(t *testing.T) {
	t.Parallel()

	s := New()
	base := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	seed(t, s, &appointment.Appointment{ID: "low", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.3), ScheduledAt: base})
	seed(t, s, &appointment.Appointment{ID: "mid", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.8), ScheduledAt: base.Add(time.Hour)})
	seed(t, s, &appointment.Appointment{ID: "top", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.95), ScheduledAt: base})
	seed(t, s, &appointment.Appointment{ID: "tie-late", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.8), ScheduledAt: base.Add(2 * time.Hour)})
	seed(t, s, &appointment.Appointment{ID: "confirmed", Status: appointment.StatusConfirmed, Risk: riskPtr(0.99), ScheduledAt: base})
	seed(t, s, &appointment.Appointment{ID: "skipped", Status: appointment.StatusSkipped, Risk: riskPtr(0.99), ScheduledAt: base})
	seed(t, s, &appointment.Appointment{ID: "unscored", Status: appointment.StatusScheduled, ScheduledAt: base})
	seed(t, s, &appointment.Appointment{ID: "boundary", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.7), ScheduledAt: base})

	queue, err := s.ActionQueue(context.Background())
	if err != nil {
		t.Fatalf("ActionQueue: %v", err)
	}

	// Risk descending, equal risk keeps scheduled-time order. 0.3 and
	// the exact-threshold 0.7 fall below the bar; resolved and unscored
	// rows never appear.
	want := []string{"top", "mid", "tie-late"}
	if len(queue) != len(want) {
		t.Fatalf("queue = %d rows, want %d", len(queue), len(want))
	}
	for i, id := range want {
		if queue[i].ID != id {
			t.Errorf("queue[%d] = %s, want %s", i, queue[i].ID, id)
		}
	}
}

func TestKPIStats(t *testing.T) {
	t.Parallel()

	s := New()
	seed(t, s, &appointment.Appointment{ID: "1", Status: appointment.StatusScheduled})
	seed(t, s, &appointment.Appointment{ID: "2", Status: appointment.StatusConfirmationSent, Risk: riskPtr(0.85)})
	seed(t, s, &appointment.Appointment{ID: "3", Status: appointment.StatusConfirmed, Risk: riskPtr(0.9)})
	seed(t, s, &appointment.Appointment{ID: "4", Status: appointment.StatusSkipped, Risk: riskPtr(0.2)})

	st, err := s.KPIStats(context.Background())
	if err != nil {
		t.Fatalf("KPIStats: %v", err)
	}
	if st.Total != 4 {
		t.Errorf("Total = %d, want 4", st.Total)
	}
	if st.Confirmed != 1 {
		t.Errorf("Confirmed = %d, want 1", st.Confirmed)
	}
	if st.Pending != 2 {
		t.Errorf("Pending = %d, want 2", st.Pending)
	}
	if st.HighRisk != 2 {
		t.Errorf("HighRisk = %d, want 2", st.HighRisk)
	}
}

func TestConcurrentAccess(t *testing.T) {
	t.Parallel()

	s := New()
	for i := 0; i < 16; i++ {
		seed(t, s, &appointment.Appointment{
			ID:          fmt.Sprintf("c-%d", i),
			Status:      appointment.StatusScheduled,
			ScheduledAt: time.Now().Add(time.Duration(i) * time.Minute),
		})
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		id := fmt.Sprintf("c-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Mutate(context.Background(), id, func(cur *appointment.Appointment) error {
				cur.Status = appointment.StatusConfirmationSent
				cur.Risk = riskPtr(0.8)
				return nil
			})
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = s.Get(context.Background(), id)
			_, _ = s.ActionQueue(context.Background())
			_, _ = s.KPIStats(context.Background())
		}()
	}
	wg.Wait()

	st, _ := s.KPIStats(context.Background())
	if st.Total != 16 || st.HighRisk != 16 {
		t.Errorf("stats after concurrent mutation = %+v", st)
	}
}
