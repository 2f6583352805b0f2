// Package pgstore provides a PostgreSQL implementation of
// appointment.Store.
package pgstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/attend/internal/appointment"
)

var tracer = otel.Tracer("github.com/linnemanlabs/attend/internal/appointment/pgstore")

//go:embed schema.sql
var schema string

// Store persists appointments in PostgreSQL. Per-row atomicity for
// Mutate comes from a SELECT ... FOR UPDATE inside a transaction.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema and returns a ready Store on the given pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

const apptColumns = `id, patient_name, patient_phone, patient_age, prior_no_shows,
	scheduled_at, appt_type, provider_name, status, no_show_risk, risk_reasons, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppt(row rowScanner) (*appointment.Appointment, error) {
	var (
		a           appointment.Appointment
		status      string
		reasonsJSON []byte
	)
	err := row.Scan(
		&a.ID, &a.PatientName, &a.PatientPhone, &a.PatientAge, &a.PriorNoShows,
		&a.ScheduledAt, &a.Type, &a.Provider, &status, &a.Risk, &reasonsJSON,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan appointment: %w", err)
	}
	a.Status = appointment.Status(status)
	if len(reasonsJSON) > 0 {
		if err := json.Unmarshal(reasonsJSON, &a.RiskReasons); err != nil {
			return nil, fmt.Errorf("unmarshal risk reasons: %w", err)
		}
	}
	return &a, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Create inserts a new appointment row.
func (s *Store) Create(ctx context.Context, a *appointment.Appointment) error {
	ctx, span := startSpan(ctx, "pgstore.Create", "INSERT")
	defer span.End()

	reasonsJSON, err := marshalReasons(a.RiskReasons)
	if err != nil {
		fail(span, err)
		return err
	}

	query := `INSERT INTO appointments (
		id, patient_name, patient_phone, patient_age, prior_no_shows,
		scheduled_at, appt_type, provider_name, status, no_show_risk, risk_reasons, created_at, updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`

	_, err = s.pool.Exec(ctx, query,
		a.ID, a.PatientName, a.PatientPhone, a.PatientAge, a.PriorNoShows,
		a.ScheduledAt, a.Type, a.Provider, string(a.Status), a.Risk, reasonsJSON,
		a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

// Get retrieves an appointment by ID.
func (s *Store) Get(ctx context.Context, id string) (*appointment.Appointment, bool, error) {
	ctx, span := startSpan(ctx, "pgstore.Get", "SELECT")
	defer span.End()

	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1`
	a, err := scanAppt(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		fail(span, err)
		return nil, false, err
	}
	if a == nil {
		return nil, false, nil
	}
	return a, true, nil
}

// List returns all appointments ordered by scheduled time ascending.
func (s *Store) List(ctx context.Context) ([]*appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments ORDER BY scheduled_at ASC`
	return s.queryAppts(ctx, "pgstore.List", query)
}

// ListByStatus returns appointments in the given status, ordered by
// scheduled time ascending.
func (s *Store) ListByStatus(ctx context.Context, st appointment.Status) ([]*appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments WHERE status = $1 ORDER BY scheduled_at ASC`
	return s.queryAppts(ctx, "pgstore.ListByStatus", query, string(st))
}

// ActionQueue returns unresolved high-risk appointments ordered by
// risk descending, ties broken by scheduled time ascending.
func (s *Store) ActionQueue(ctx context.Context) ([]*appointment.Appointment, error) {
	query := `SELECT ` + apptColumns + ` FROM appointments
		WHERE no_show_risk > $1 AND status NOT IN ($2, $3)
		ORDER BY no_show_risk DESC, scheduled_at ASC`
	return s.queryAppts(ctx, "pgstore.ActionQueue", query,
		appointment.HighRiskThreshold,
		string(appointment.StatusConfirmed),
		string(appointment.StatusSkipped),
	)
}

func (s *Store) queryAppts(ctx context.Context, spanName, query string, args ...any) ([]*appointment.Appointment, error) {
	ctx, span := startSpan(ctx, spanName, "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("query appointments: %w", err)
	}
	defer rows.Close()

	var out []*appointment.Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			fail(span, err)
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("iterate appointments: %w", err)
	}
	return out, nil
}

// Mutate applies fn to the row under a row lock and persists the
// result. Returns appointment.ErrNotFound for an unknown ID; if fn
// errors the transaction rolls back and the row is left unchanged.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*appointment.Appointment) error) (*appointment.Appointment, error) {
	ctx, span := startSpan(ctx, "pgstore.Mutate", "UPDATE")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	query := `SELECT ` + apptColumns + ` FROM appointments WHERE id = $1 FOR UPDATE`
	a, err := scanAppt(tx.QueryRow(ctx, query, id))
	if err != nil {
		fail(span, err)
		return nil, err
	}
	if a == nil {
		return nil, appointment.ErrNotFound
	}

	if err := fn(a); err != nil {
		return nil, err
	}
	a.UpdatedAt = time.Now().UTC()

	reasonsJSON, err := marshalReasons(a.RiskReasons)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	update := `UPDATE appointments SET
		status = $2, no_show_risk = $3, risk_reasons = $4, updated_at = $5
		WHERE id = $1`
	if _, err := tx.Exec(ctx, update, a.ID, string(a.Status), a.Risk, reasonsJSON, a.UpdatedAt); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("update appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("commit: %w", err)
	}
	return a, nil
}

// ResetAll returns every row to Scheduled with risk and reasons
// cleared, in one statement.
func (s *Store) ResetAll(ctx context.Context) (int, error) {
	ctx, span := startSpan(ctx, "pgstore.ResetAll", "UPDATE")
	defer span.End()

	tag, err := s.pool.Exec(ctx, `UPDATE appointments SET
		status = $1, no_show_risk = NULL, risk_reasons = NULL, updated_at = now()`,
		string(appointment.StatusScheduled),
	)
	if err != nil {
		fail(span, err)
		return 0, fmt.Errorf("reset appointments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// KPIStats computes the dashboard aggregates in a single query.
func (s *Store) KPIStats(ctx context.Context) (*appointment.KPIStats, error) {
	ctx, span := startSpan(ctx, "pgstore.KPIStats", "SELECT")
	defer span.End()

	query := `SELECT
		count(*),
		count(*) FILTER (WHERE status = $1),
		count(*) FILTER (WHERE status IN ($2, $3)),
		count(*) FILTER (WHERE no_show_risk > $4)
	FROM appointments`

	var st appointment.KPIStats
	err := s.pool.QueryRow(ctx, query,
		string(appointment.StatusConfirmed),
		string(appointment.StatusScheduled),
		string(appointment.StatusConfirmationSent),
		appointment.HighRiskThreshold,
	).Scan(&st.Total, &st.Confirmed, &st.Pending, &st.HighRisk)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("kpi stats: %w", err)
	}
	return &st, nil
}

func marshalReasons(reasons []string) ([]byte, error) {
	if reasons == nil {
		return nil, nil
	}
	b, err := json.Marshal(reasons)
	if err != nil {
		return nil, fmt.Errorf("marshal risk reasons: %w", err)
	}
	return b, nil
}
