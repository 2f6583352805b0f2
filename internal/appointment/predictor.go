package appointment

import "context"

// Assessment is a successful predictor response: a no-show probability
// and the reasons behind it. Reasons may be empty.
type Assessment struct {
	Risk    float64
	Level   string
	Reasons []string
}

// Predictor is the interface for the external no-show risk service.
// Implementations must be safe for concurrent use; ProcessDue fans out
// calls across a batch.
type Predictor interface {
	Predict(ctx context.Context, a *Appointment) (*Assessment, error)
}
