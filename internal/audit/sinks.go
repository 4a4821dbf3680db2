package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Veraticus/the-books-must-balance/internal/common"
	"github.com/Veraticus/the-books-must-balance/internal/service"
)

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink creates a sink logging at level. A nil logger uses the default.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	return &LogSink{logger: common.OrDefault(logger), level: level}
}

// LogEvent logs the event with its metadata as attributes.
func (s *LogSink) LogEvent(ctx context.Context, kind, description string, metadata map[string]any) error {
	attrs := make([]slog.Attr, 0, len(metadata)+1)
	attrs = append(attrs, slog.String("audit_kind", kind))
	for k, v := range metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.logger.LogAttrs(ctx, s.level, description, attrs...)
	return nil
}

// Multi fans events out to every sink. All sinks are tried; their errors
// are joined.
type Multi []service.AuditLogger

// NewMulti drops nil sinks.
func NewMulti(sinks ...service.AuditLogger) Multi {
	var out Multi
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// LogEvent forwards to every sink.
func (m Multi) LogEvent(ctx context.Context, kind, description string, metadata map[string]any) error {
	var errs []error
	for _, s := range m {
		if err := s.LogEvent(ctx, kind, description, metadata); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
