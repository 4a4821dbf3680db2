// Package audit provides AuditLogger sinks: an append-only JSONL file, a
// structured log sink and a fan-out over several sinks.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// ErrClosed is returned when writing to a closed sink.
var ErrClosed = errors.New("audit sink is closed")

// JSONLSink appends one JSON object per event to a file.
type JSONLSink struct {
	f    *os.File
	now  func() time.Time
	path string
	seq  int64
	mu   sync.Mutex
}

// NewJSONLSink creates or opens path for appending, creating parent
// directories as needed.
func NewJSONLSink(path string) (*JSONLSink, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is required: %w", os.ErrInvalid)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return &JSONLSink{path: path, f: f, now: time.Now}, nil
}

// Path returns the file the sink writes to.
func (s *JSONLSink) Path() string {
	return s.path
}

// LogEvent appends an event line.
func (s *JSONLSink) LogEvent(_ context.Context, kind, description string, metadata map[string]any) error {
	if kind == "" {
		return errors.New("audit event kind is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrClosed
	}

	s.seq++
	data, err := json.Marshal(service.AuditEvent{
		ID:          s.seq,
		CreatedAt:   s.now().UTC(),
		Kind:        kind,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	data = append(data, '\n')
	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("failed to write audit event: %w", err)
	}
	return nil
}

// Events reads back every event of kind, or all events when kind is empty.
// Unreadable lines are skipped.
func (s *JSONLSink) Events(kind string) ([]service.AuditEvent, error) {
	s.mu.Lock()
	if s.f != nil {
		_ = s.f.Sync()
	}
	s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var out []service.AuditEvent
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		if len(line) == 0 {
			continue
		}
		var e service.AuditEvent
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out, nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}
