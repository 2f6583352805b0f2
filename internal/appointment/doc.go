// Package appointment provides the business boundary for the triage
// workflow. It defines the Engine (batch scoring, manual resolution,
// derived views), the Store interface (persistence), the Predictor and
// Notifier interfaces (external collaborators), and domain models.
package appointment
