// Package predictor provides the HTTP client for the external no-show
// risk prediction service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/attend/internal/appointment"
)

// ErrorKind classifies predictor failures for the caller.
type ErrorKind string

const (
	// Unavailable means the service could not be reached or timed out.
	Unavailable ErrorKind = "unavailable"

	// Rejected means the service answered with a non-2xx status.
	Rejected ErrorKind = "rejected"

	// Malformed means the response body could not be used.
	Malformed ErrorKind = "malformed"
)

// Error is a classified predictor failure.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	cause      error
}

func (e *Error) Error() string {
	if e.Kind == Rejected {
		return fmt.Sprintf("predictor: %s (status %d)", e.Kind, e.StatusCode)
	}
	return fmt.Sprintf("predictor: %s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// DefaultTimeout bounds each predictor call when no timeout is
// configured.
const DefaultTimeout = 10 * time.Second

// Client calls the risk prediction service. It is stateless and safe
// for concurrent use. Retry policy, if any, belongs to the caller.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a predictor client for the given base endpoint. A
// timeout of zero falls back to DefaultTimeout.
func New(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// request is the feature set the model consumes. All fields are
// required except previous no-shows, which defaults to zero.
type request struct {
	Age             int    `json:"age"`
	PreviousNoShows int    `json:"previous_no_shows"`
	DaysUntil       int    `json:"days_until_appointment"`
	AppointmentHour int    `json:"appointment_hour"`
	PatientID       string `json:"patient_id,omitempty"`
}

type response struct {
	RiskScore float64  `json:"risk_score"`
	RiskLevel string   `json:"risk_level"`
	Reasons   []string `json:"reasons"`
}

// Predict scores one appointment. Failures are returned as *Error with
// the kind set; the caller decides whether to count or surface them.
func (c *Client) Predict(ctx context.Context, a *appointment.Appointment) (*appointment.Assessment, error) {
	req := request{
		Age:             a.PatientAge,
		PreviousNoShows: a.PriorNoShows,
		DaysUntil:       daysUntil(a.ScheduledAt, time.Now()),
		AppointmentHour: a.ScheduledAt.Hour(),
		PatientID:       a.ID,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &Error{Kind: Malformed, cause: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/predict", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: Unavailable, cause: fmt.Errorf("create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return nil, &Error{Kind: Unavailable, cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 512))
		return nil, &Error{Kind: Rejected, StatusCode: resp.StatusCode}
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &Error{Kind: Malformed, cause: fmt.Errorf("decode response: %w", err)}
	}
	if out.RiskScore < 0 || out.RiskScore > 1 {
		return nil, &Error{Kind: Malformed, cause: fmt.Errorf("risk_score %v out of range [0,1]", out.RiskScore)}
	}

	return &appointment.Assessment{
		Risk:    out.RiskScore,
		Level:   out.RiskLevel,
		Reasons: out.Reasons,
	}, nil
}

// Healthy probes the service's health endpoint. Used by readiness.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req) //nolint:gosec // G704: endpoint is from trusted config, not user input
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "healthy"
}

// daysUntil truncates to whole days and never goes negative; a
// same-day or past appointment has zero days remaining.
func daysUntil(at, now time.Time) int {
	d := int(at.Sub(now).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
