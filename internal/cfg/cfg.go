package cfg

import (
	"errors"
	"flag"
	"fmt"
)

// Config adds app-specific configuration fields to the
// common cfg.Registerable and cfg.Validatable interfaces
type Config struct {
	DrainSeconds            int
	ShutdownBudgetSeconds   int
	APIPort                 int
	PredictorEndpoint       string
	PredictorTimeoutSeconds int
	ProcessIntervalSeconds  int
	DatabaseURL             string
	AuditLogPath            string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.PredictorEndpoint, "predictor-endpoint", "", "base URL of the no-show risk prediction service")
	fs.IntVar(&c.PredictorTimeoutSeconds, "predictor-timeout-seconds", 10, "per-call timeout for predictor requests (1..60)")
	fs.IntVar(&c.ProcessIntervalSeconds, "process-interval-seconds", 0, "interval for automatic batch processing (0 = manual trigger only)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory store)")
	fs.StringVar(&c.AuditLogPath, "audit-log-path", "attend-audit.jsonl", "path of the append-only audit log file")
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	var errs []error

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	// Predictor endpoint is required for batch processing
	if c.PredictorEndpoint == "" {
		errs = append(errs, errors.New("PREDICTOR_ENDPOINT is required"))
	}

	if c.PredictorTimeoutSeconds <= 0 || c.PredictorTimeoutSeconds > 60 {
		errs = append(errs, fmt.Errorf("invalid PREDICTOR_TIMEOUT_SECONDS %d (must be 1..60)", c.PredictorTimeoutSeconds))
	}

	if c.ProcessIntervalSeconds < 0 {
		errs = append(errs, fmt.Errorf("invalid PROCESS_INTERVAL_SECONDS %d (must be >= 0)", c.ProcessIntervalSeconds))
	}

	if c.AuditLogPath == "" {
		errs = append(errs, errors.New("AUDIT_LOG_PATH is required"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
