package appointment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"

	"github.com/linnemanlabs/attend/internal/audit"
)

// BatchWorkers bounds the predictor fan-out within one processing run.
const BatchWorkers = 4

// EngineHooks are optional callbacks the engine fires for
// instrumentation. Nil funcs are skipped.
type EngineHooks struct {
	OnPredictorCall func(outcome string, duration float64)
	OnBatch         func(r *BatchResult, duration float64)
	OnNotify        func(action Action)
}

// Engine is the business boundary for the triage workflow: batch
// scoring, manual resolution, reset, and the derived dashboard views.
type Engine struct {
	store     Store
	predictor Predictor
	notifier  Notifier
	auditor   audit.Sink
	logger    log.Logger
	hooks     EngineHooks
}

// NewEngine creates a triage engine. notifier may be nil (no
// broadcasting) and auditor may be nil (no audit trail).
func NewEngine(store Store, predictor Predictor, notifier Notifier, auditor audit.Sink, logger log.Logger, hooks EngineHooks) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	if auditor == nil {
		auditor = audit.Nop{}
	}
	return &Engine{
		store:     store,
		predictor: predictor,
		notifier:  notifier,
		auditor:   auditor,
		logger:    logger,
		hooks:     hooks,
	}
}

// NewAppointment is the caller-supplied data for a booking.
type NewAppointment struct {
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	PatientAge   int       `json:"patient_age"`
	PriorNoShows int       `json:"prior_no_shows"`
	ScheduledAt  time.Time `json:"appointment_time"`
	Type         string    `json:"appointment_type"`
	Provider     string    `json:"provider_name"`
}

// Validate rejects bookings before any mutation.
func (n *NewAppointment) Validate() error {
	var errs []error
	if n.PatientName == "" {
		errs = append(errs, errors.New("patient_name is required"))
	}
	if n.PatientPhone == "" {
		errs = append(errs, errors.New("patient_phone is required"))
	}
	if n.PatientAge < 0 || n.PatientAge > 120 {
		errs = append(errs, fmt.Errorf("patient_age %d out of range 0..120", n.PatientAge))
	}
	if n.PriorNoShows < 0 {
		errs = append(errs, fmt.Errorf("prior_no_shows %d must be >= 0", n.PriorNoShows))
	}
	if n.ScheduledAt.IsZero() {
		errs = append(errs, errors.New("appointment_time is required"))
	}
	if n.Type == "" {
		errs = append(errs, errors.New("appointment_type is required"))
	}
	if n.Provider == "" {
		errs = append(errs, errors.New("provider_name is required"))
	}
	return errors.Join(errs...)
}

// Create books a new appointment in Scheduled state with no risk
// assigned. The ID is generated here, never by the caller.
func (e *Engine) Create(ctx context.Context, n NewAppointment) (*Appointment, error) {
	if err := n.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	a := &Appointment{
		ID:           ulid.Make().String(),
		PatientName:  n.PatientName,
		PatientPhone: n.PatientPhone,
		PatientAge:   n.PatientAge,
		PriorNoShows: n.PriorNoShows,
		ScheduledAt:  n.ScheduledAt,
		Type:         n.Type,
		Provider:     n.Provider,
		Status:       StatusScheduled,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	e.logger.Info(ctx, "appointment created",
		"appointment_id", a.ID,
		"patient_name", a.PatientName,
		"appointment_time", a.ScheduledAt,
	)
	return a, nil
}

// ProcessDue scores every Scheduled appointment against the predictor
// and advances the successful ones to Confirmation Sent. Per-row
// failures are counted and isolated; they never abort the batch. One
// aggregate event is published after the batch, and none at all when
// there was nothing to process.
func (e *Engine) ProcessDue(ctx context.Context) (*BatchResult, error) {
	start := time.Now()

	due, err := e.store.ListByStatus(ctx, StatusScheduled)
	if err != nil {
		return nil, fmt.Errorf("list scheduled: %w", err)
	}

	result := &BatchResult{Total: len(due)}
	if len(due) == 0 {
		e.logger.Info(ctx, "no scheduled appointments to process")
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, BatchWorkers)
	)

	for _, a := range due {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			ok := e.processOne(ctx, a)

			mu.Lock()
			if ok {
				result.Processed++
			} else {
				result.Failed++
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	dur := time.Since(start).Seconds()
	e.logger.Info(ctx, "batch complete",
		"processed", result.Processed,
		"failed", result.Failed,
		"total", result.Total,
		"duration", dur,
	)
	if e.hooks.OnBatch != nil {
		e.hooks.OnBatch(result, dur)
	}

	e.publish(ctx, Event{
		Message: fmt.Sprintf("Processed %d of %d scheduled appointments", result.Processed, result.Total),
		Action:  ActionProcess,
	})
	return result, nil
}

// processOne scores a single appointment and commits the transition.
// Returns false on any failure, leaving the row untouched.
func (e *Engine) processOne(ctx context.Context, a *Appointment) bool {
	callStart := time.Now()
	as, err := e.predictor.Predict(ctx, a)
	callDur := time.Since(callStart).Seconds()

	if err != nil {
		if e.hooks.OnPredictorCall != nil {
			e.hooks.OnPredictorCall("error", callDur)
		}
		e.logger.Error(ctx, err, "predictor call failed",
			"appointment_id", a.ID,
			"patient_name", a.PatientName,
		)
		return false
	}
	if e.hooks.OnPredictorCall != nil {
		e.hooks.OnPredictorCall("success", callDur)
	}

	updated, err := e.store.Mutate(ctx, a.ID, func(cur *Appointment) error {
		// A concurrent manual action may have resolved the row after
		// the batch snapshot was taken. It wins; don't overwrite.
		if cur.Status != StatusScheduled {
			return fmt.Errorf("status changed to %q during batch", cur.Status)
		}
		risk := as.Risk
		cur.Risk = &risk
		cur.RiskReasons = as.Reasons
		cur.Status = StatusConfirmationSent
		return nil
	})
	if err != nil {
		e.logger.Error(ctx, err, "failed to commit risk assignment", "appointment_id", a.ID)
		return false
	}

	if err := e.auditor.Append(ctx, audit.Record{
		Time:          time.Now().UTC(),
		AppointmentID: updated.ID,
		PatientName:   updated.PatientName,
		Risk:          as.Risk,
		ReasonCount:   len(as.Reasons),
	}); err != nil {
		// The transition is already committed; audit loss is logged,
		// not retried.
		e.logger.Error(ctx, err, "audit append failed", "appointment_id", updated.ID)
	}

	e.logger.Info(ctx, "processed appointment",
		"appointment_id", updated.ID,
		"patient_name", updated.PatientName,
		"risk_score", as.Risk,
		"risk_level", as.Level,
		"reasons_count", len(as.Reasons),
		"appointment_time", updated.ScheduledAt,
	)
	return true
}

// ResetAll returns every appointment to Scheduled with risk cleared and
// publishes one event. Re-running on an already-reset set is a no-op in
// effect but still emits the event.
func (e *Engine) ResetAll(ctx context.Context) (int, error) {
	n, err := e.store.ResetAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("reset all: %w", err)
	}

	e.logger.Info(ctx, "appointments reset", "count", n)
	e.publish(ctx, Event{
		Message: "Appointments reset to initial state",
		Action:  ActionReset,
	})
	return n, nil
}

// Confirm marks the appointment as resolved by staff. Risk is left
// untouched. Returns ErrNotFound for an unknown ID, with no mutation
// and no event.
func (e *Engine) Confirm(ctx context.Context, id string) (*Appointment, error) {
	return e.resolve(ctx, id, StatusConfirmed, ActionConfirm, "confirmed manually")
}

// Skip dismisses the appointment from the action queue. Risk is left
// untouched. Returns ErrNotFound for an unknown ID, with no mutation
// and no event.
func (e *Engine) Skip(ctx context.Context, id string) (*Appointment, error) {
	return e.resolve(ctx, id, StatusSkipped, ActionSkip, "skipped")
}

func (e *Engine) resolve(ctx context.Context, id string, st Status, action Action, verb string) (*Appointment, error) {
	a, err := e.store.Mutate(ctx, id, func(cur *Appointment) error {
		cur.Status = st
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("set status %q: %w", st, err)
	}

	e.logger.Info(ctx, "appointment resolved",
		"appointment_id", a.ID,
		"status", a.Status,
		"patient_name", a.PatientName,
	)
	e.publish(ctx, Event{
		Message: fmt.Sprintf("Appointment %s %s", a.ID, verb),
		Action:  action,
	})
	return a, nil
}

// ActionQueue re-derives the high-risk queue from current store state
// on every call.
func (e *Engine) ActionQueue(ctx context.Context) ([]*Appointment, error) {
	return e.store.ActionQueue(ctx)
}

// KPIStats re-derives the dashboard aggregates from current store
// state on every call.
func (e *Engine) KPIStats(ctx context.Context) (*KPIStats, error) {
	return e.store.KPIStats(ctx)
}

// List returns all appointments ordered by scheduled time ascending.
func (e *Engine) List(ctx context.Context) ([]*Appointment, error) {
	return e.store.List(ctx)
}

func (e *Engine) publish(ctx context.Context, ev Event) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(ev)
	if e.hooks.OnNotify != nil {
		e.hooks.OnNotify(ev.Action)
	}
	e.logger.Info(ctx, "event published", "action", ev.Action, "message", ev.Message)
}
