package dashapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/attend/internal/appointment"
	"github.com/linnemanlabs/attend/internal/audit"
)

// mockService implements TriageService with canned responses.
type mockService struct {
	createFn  func(ctx context.Context, n appointment.NewAppointment) (*appointment.Appointment, error)
	processFn func(ctx context.Context) (*appointment.BatchResult, error)
	resetFn   func(ctx context.Context) (int, error)
	resolveFn func(ctx context.Context, id string) (*appointment.Appointment, error)
	queueFn   func(ctx context.Context) ([]*appointment.Appointment, error)
	statsFn   func(ctx context.Context) (*appointment.KPIStats, error)
	listFn    func(ctx context.Context) ([]*appointment.Appointment, error)
}

func (m *mockService) Create(ctx context.Context, n appointment.NewAppointment) (*appointment.Appointment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	return &appointment.Appointment{ID: "new-1", Status: appointment.StatusScheduled}, nil
}

func (m *mockService) ProcessDue(ctx context.Context) (*appointment.BatchResult, error) {
	if m.processFn != nil {
		return m.processFn(ctx)
	}
	return &appointment.BatchResult{Processed: 3, Failed: 1, Total: 4}, nil
}

func (m *mockService) ResetAll(ctx context.Context) (int, error) {
	if m.resetFn != nil {
		return m.resetFn(ctx)
	}
	return 7, nil
}

func (m *mockService) Confirm(ctx context.Context, id string) (*appointment.Appointment, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id)
	}
	return &appointment.Appointment{ID: id, Status: appointment.StatusConfirmed}, nil
}

func (m *mockService) Skip(ctx context.Context, id string) (*appointment.Appointment, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, id)
	}
	return &appointment.Appointment{ID: id, Status: appointment.StatusSkipped}, nil
}

func (m *mockService) ActionQueue(ctx context.Context) ([]*appointment.Appointment, error) {
	if m.queueFn != nil {
		return m.queueFn(ctx)
	}
	return nil, nil
}

func (m *mockService) KPIStats(ctx context.Context) (*appointment.KPIStats, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return &appointment.KPIStats{Total: 10, Confirmed: 4, Pending: 5, HighRisk: 2}, nil
}

func (m *mockService) List(ctx context.Context) ([]*appointment.Appointment, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// mockAuditReader serves fixed records.
type mockAuditReader struct {
	recs []audit.Record
}

func (m *mockAuditReader) Recent(n int) []audit.Record {
	if n > len(m.recs) {
		n = len(m.recs)
	}
	return m.recs[:n]
}

func newTestRouter(t *testing.T, svc TriageService, auditr AuditReader) http.Handler {
	t.Helper()
	r := chi.NewRouter()
	New(log.Nop(), svc, auditr).RegisterRoutes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_NilService(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic for nil service")
		}
	}()
	New(log.Nop(), nil, nil)
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/kpi-stats", http.StatusOK},
		{http.MethodGet, "/api/appointments", http.StatusOK},
		{http.MethodGet, "/api/action-queue", http.StatusOK},
		{http.MethodGet, "/api/action-log", http.StatusOK},
		{http.MethodPost, "/api/process-appointments", http.StatusOK},
		{http.MethodPost, "/api/reset-appointments", http.StatusOK},
		{http.MethodPost, "/api/appointments/a-1/confirm", http.StatusOK},
		{http.MethodPost, "/api/appointments/a-1/skip", http.StatusOK},
		{http.MethodGet, "/api/process-appointments", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/kpi-stats", http.StatusMethodNotAllowed},
		{http.MethodGet, "/api/nope", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.method+" "+tc.path, func(t *testing.T) {
			t.Parallel()
			rec := doRequest(t, h, tc.method, tc.path, "")
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestKPIStats(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodGet, "/api/kpi-stats", "")

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var stats appointment.KPIStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if stats.Total != 10 || stats.HighRisk != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAppointments_EmptyIsArray(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})

	for _, path := range []string{"/api/appointments", "/api/action-queue", "/api/action-log"} {
		rec := doRequest(t, h, http.MethodGet, path, "")
		if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
			t.Errorf("%s body = %q, want []", path, got)
		}
	}
}

func TestActionQueue_PreservesOrder(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		queueFn: func(context.Context) ([]*appointment.Appointment, error) {
			r1, r2 := 0.95, 0.8
			return []*appointment.Appointment{
				{ID: "top", Risk: &r1},
				{ID: "next", Risk: &r2},
			}, nil
		},
	}
	h := newTestRouter(t, svc, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodGet, "/api/action-queue", "")

	var queue []appointment.Appointment
	if err := json.Unmarshal(rec.Body.Bytes(), &queue); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(queue) != 2 || queue[0].ID != "top" || queue[1].ID != "next" {
		t.Errorf("queue = %+v", queue)
	}
}

func TestActionLog(t *testing.T) {
	t.Parallel()

	auditr := &mockAuditReader{recs: []audit.Record{
		{Time: time.Now(), AppointmentID: "a-1", PatientName: "Ana", Risk: 0.9, ReasonCount: 2},
	}}
	h := newTestRouter(t, &mockService{}, auditr)
	rec := doRequest(t, h, http.MethodGet, "/api/action-log", "")

	var recs []audit.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &recs); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recs) != 1 || recs[0].AppointmentID != "a-1" {
		t.Errorf("records = %+v", recs)
	}
}

func TestProcess(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodPost, "/api/process-appointments", "")

	var body struct {
		Success   bool `json:"success"`
		Processed int  `json:"processed"`
		Failed    int  `json:"failed"`
		Total     int  `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.Processed != 3 || body.Failed != 1 || body.Total != 4 {
		t.Errorf("body = %+v", body)
	}
}

func TestProcess_EngineError(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		processFn: func(context.Context) (*appointment.BatchResult, error) {
			return nil, errors.New("store down")
		},
	}
	h := newTestRouter(t, svc, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodPost, "/api/process-appointments", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodPost, "/api/reset-appointments", "")

	var body struct {
		Success bool `json:"success"`
		Count   int  `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.Count != 7 {
		t.Errorf("body = %+v", body)
	}
}

func TestResolve_NotFound(t *testing.T) {
	t.Parallel()

	svc := &mockService{
		resolveFn: func(_ context.Context, id string) (*appointment.Appointment, error) {
			return nil, appointment.ErrNotFound
		},
	}
	h := newTestRouter(t, svc, &mockAuditReader{})

	for _, path := range []string{"/api/appointments/ghost/confirm", "/api/appointments/ghost/skip"} {
		rec := doRequest(t, h, http.MethodPost, path, "")
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, rec.Code)
		}
	}
}

func TestResolve_ReturnsAppointment(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})
	rec := doRequest(t, h, http.MethodPost, "/api/appointments/a-9/confirm", "")

	var body struct {
		Success     bool                    `json:"success"`
		Appointment appointment.Appointment `json:"appointment"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !body.Success || body.Appointment.ID != "a-9" || body.Appointment.Status != appointment.StatusConfirmed {
		t.Errorf("body = %+v", body)
	}
}

func TestCreate(t *testing.T) {
	t.Parallel()

	var captured appointment.NewAppointment
	svc := &mockService{
		createFn: func(_ context.Context, n appointment.NewAppointment) (*appointment.Appointment, error) {
			captured = n
			return &appointment.Appointment{ID: "created", Status: appointment.StatusScheduled}, nil
		},
	}
	h := newTestRouter(t, svc, &mockAuditReader{})

	payload := `{
		"patient_name": "Ana Silva",
		"patient_phone": "555-0101",
		"patient_age": 42,
		"appointment_time": "2026-09-15T14:30:00Z",
		"appointment_type": "Follow-up",
		"provider_name": "Dr. Chen"
	}`
	rec := doRequest(t, h, http.MethodPost, "/api/appointments", payload)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if captured.PatientName != "Ana Silva" || captured.PatientAge != 42 {
		t.Errorf("captured = %+v", captured)
	}
}

func TestCreate_BadRequest(t *testing.T) {
	t.Parallel()

	h := newTestRouter(t, &mockService{}, &mockAuditReader{})

	tests := []struct {
		name string
		body string
	}{
		{"not json", "not json at all"},
		{"missing fields", `{"patient_name": "Ana"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doRequest(t, h, http.MethodPost, "/api/appointments", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}
