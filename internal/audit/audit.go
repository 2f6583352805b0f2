// Package audit provides the append-only structured record of triage
// state transitions, written independently of the primary store.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is one state transition. Records are never mutated after
// append.
type Record struct {
	Time          time.Time `json:"time"`
	AppointmentID string    `json:"appointment_id"`
	PatientName   string    `json:"patient_name"`
	Risk          float64   `json:"risk_score"`
	ReasonCount   int       `json:"reasons_count"`
}

// Sink appends records durably and serves recent ones for the
// dashboard. The engine treats Append as fire-and-forget; the sink
// itself must not acknowledge before the record is on disk.
type Sink interface {
	Append(ctx context.Context, rec Record) error
	Recent(n int) []Record
}

// retainRecords bounds the in-memory ring served by Recent. The file
// keeps full history; only the dashboard view is bounded.
const retainRecords = 256

// FileSink writes records as JSON lines to a single append-only file
// and keeps a bounded in-memory ring for reads.
type FileSink struct {
	mu   sync.Mutex
	f    *os.File
	ring []Record
}

// Open opens (or creates) the audit file for appending and returns a
// ready sink.
func Open(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("audit: open %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Append writes one record and syncs before returning, so an
// acknowledged record survives a crash.
func (s *FileSink) Append(_ context.Context, rec Record) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshal record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("audit: write record: %w", err)
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}

	s.ring = append(s.ring, rec)
	if len(s.ring) > retainRecords {
		s.ring = s.ring[len(s.ring)-retainRecords:]
	}
	return nil
}

// Recent returns up to n of the most recent records, oldest first.
func (s *FileSink) Recent(n int) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n > len(s.ring) {
		n = len(s.ring)
	}
	out := make([]Record, n)
	copy(out, s.ring[len(s.ring)-n:])
	return out
}

// Load reads existing records from an audit file into the ring so
// Recent works across restarts. Unparseable lines are skipped.
func (s *FileSink) Load(path string) error {
	f, err := os.Open(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("audit: open for load: %w", err)
	}
	defer func() { _ = f.Close() }()

	var recs []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec Record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		recs = append(recs, rec)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("audit: scan: %w", err)
	}

	if len(recs) > retainRecords {
		recs = recs[len(recs)-retainRecords:]
	}

	s.mu.Lock()
	s.ring = recs
	s.mu.Unlock()
	return nil
}

// Nop is a sink that drops every record. Useful in tests.
type Nop struct{}

func (Nop) Append(context.Context, Record) error { return nil }
func (Nop) Recent(int) []Record                  { return nil }
