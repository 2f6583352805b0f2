package appointment

import "time"

// Status tracks where an appointment is in the confirmation workflow.
type Status string

const (
	// StatusScheduled means booked, not yet processed
	StatusScheduled Status = "Scheduled"

	// StatusConfirmationSent means the batch processor scored the
	// appointment and a confirmation request went out
	StatusConfirmationSent Status = "Confirmation Sent"

	// StatusConfirmed means staff resolved the appointment as attending
	StatusConfirmed Status = "Confirmed"

	// StatusSkipped means staff dismissed the appointment from the queue
	StatusSkipped Status = "Skipped"
)

// HighRiskThreshold is the no-show risk above which an appointment
// enters the action queue and counts toward the high-risk KPI.
const HighRiskThreshold = 0.7

// Appointment is a scheduled patient visit, optionally enriched with a
// no-show risk score from the predictor.
type Appointment struct {
	ID           string    `json:"id"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	PatientAge   int       `json:"patient_age"`
	PriorNoShows int       `json:"prior_no_shows"`
	ScheduledAt  time.Time `json:"appointment_time"`
	Type         string    `json:"appointment_type"`
	Provider     string    `json:"provider_name"`
	Status       Status    `json:"status"`
	Risk         *float64  `json:"no_show_risk"`
	RiskReasons  []string  `json:"risk_reasons,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HighRisk reports whether the appointment's assigned risk exceeds the
// action-queue threshold. An unscored appointment is never high risk.
func (a *Appointment) HighRisk() bool {
	return a.Risk != nil && *a.Risk > HighRiskThreshold
}

// Resolved reports whether staff already acted on the appointment.
// Resolved appointments are excluded from the action queue.
func (a *Appointment) Resolved() bool {
	return a.Status == StatusConfirmed || a.Status == StatusSkipped
}

// BatchResult is the outcome of one processing run. It is returned to
// the caller and never persisted.
type BatchResult struct {
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// KPIStats are the dashboard aggregate counts. Categories overlap: a
// high-risk appointment can also be pending.
type KPIStats struct {
	Total     int `json:"total"`
	Confirmed int `json:"confirmed"`
	Pending   int `json:"pending"`
	HighRisk  int `json:"high_risk"`
}
