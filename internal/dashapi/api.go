// Package dashapi exposes the triage engine over HTTP for the
// dashboard.
package dashapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/attend/internal/appointment"
	"github.com/linnemanlabs/attend/internal/audit"
)

// actionLogLimit bounds the audit records served to the dashboard.
const actionLogLimit = 20

// TriageService defines the business operations dashapi needs.
type TriageService interface {
	Create(ctx context.Context, n appointment.NewAppointment) (*appointment.Appointment, error)
	ProcessDue(ctx context.Context) (*appointment.BatchResult, error)
	ResetAll(ctx context.Context) (int, error)
	Confirm(ctx context.Context, id string) (*appointment.Appointment, error)
	Skip(ctx context.Context, id string) (*appointment.Appointment, error)
	ActionQueue(ctx context.Context) ([]*appointment.Appointment, error)
	KPIStats(ctx context.Context) (*appointment.KPIStats, error)
	List(ctx context.Context) ([]*appointment.Appointment, error)
}

// AuditReader serves recent audit records.
type AuditReader interface {
	Recent(n int) []audit.Record
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    TriageService
	auditr AuditReader
}

// New creates a new API handler.
func New(logger log.Logger, svc TriageService, auditr AuditReader) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("triage service is required"))
	}
	if auditr == nil {
		auditr = audit.Nop{}
	}
	return &API{
		logger: logger,
		svc:    svc,
		auditr: auditr,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/kpi-stats", a.handleKPIStats)
		r.Get("/appointments", a.handleAppointments)
		r.Get("/action-queue", a.handleActionQueue)
		r.Get("/action-log", a.handleActionLog)
		r.Post("/appointments", a.handleCreate)
		r.Post("/process-appointments", a.handleProcess)
		r.Post("/reset-appointments", a.handleReset)
		r.Post("/appointments/{id}/confirm", a.handleConfirm)
		r.Post("/appointments/{id}/skip", a.handleSkip)
	})
}

func (a *API) handleKPIStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.KPIStats(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to compute kpi stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (a *API) handleAppointments(w http.ResponseWriter, r *http.Request) {
	appts, err := a.svc.List(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to list appointments")
		return
	}
	if appts == nil {
		appts = []*appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

func (a *API) handleActionQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := a.svc.ActionQueue(r.Context())
	if err != nil {
		a.serverError(w, r, err, "failed to derive action queue")
		return
	}
	if queue == nil {
		queue = []*appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, queue)
}

func (a *API) handleActionLog(w http.ResponseWriter, r *http.Request) {
	recs := a.auditr.Recent(actionLogLimit)
	if recs == nil {
		recs = []audit.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (a *API) handleCreate(w http.ResponseWriter, r *http.Request) {
	var n appointment.NewAppointment
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		http.Error(w, `{"error":"invalid payload"}`, http.StatusBadRequest)
		return
	}
	if err := n.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	appt, err := a.svc.Create(r.Context(), n)
	if err != nil {
		a.serverError(w, r, err, "failed to create appointment")
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (a *API) handleProcess(w http.ResponseWriter, r *http.Request) {
	result, err := a.svc.ProcessDue(r.Context())
	if err != nil {
		a.serverError(w, r, err, "batch processing failed")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(
		attribute.Int("attend.batch.processed", result.Processed),
		attribute.Int("attend.batch.failed", result.Failed),
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"processed": result.Processed,
		"failed":    result.Failed,
		"total":     result.Total,
	})
}

func (a *API) handleReset(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.ResetAll(r.Context())
	if err != nil {
		a.serverError(w, r, err, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   n,
	})
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	a.handleResolve(w, r, a.svc.Confirm)
}

func (a *API) handleSkip(w http.ResponseWriter, r *http.Request) {
	a.handleResolve(w, r, a.svc.Skip)
}

func (a *API) handleResolve(w http.ResponseWriter, r *http.Request, op func(context.Context, string) (*appointment.Appointment, error)) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("attend.appointment.id", id))

	appt, err := op(r.Context(), id)
	if err != nil {
		if errors.Is(err, appointment.ErrNotFound) {
			http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
			return
		}
		a.serverError(w, r, err, "manual resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"appointment": appt,
	})
}

func (a *API) serverError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	a.logger.Error(r.Context(), err, msg)
	http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
