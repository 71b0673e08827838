package log

import (
	"context"
	"log/slog"
)

// pipelineHandler is a slog.Handler that routes records through the logger's
// formatter and outputs, so slog-originated entries render identically to
// Field-based ones.
type pipelineHandler struct {
	logger *baseLogger
	attrs  []slog.Attr
}

// Enabled gates by the owning logger's level.
func (h *pipelineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return *h.logger.level <= fromSlogLevel(level)
}

// Handle converts the record to an Entry and writes it to every output.
func (h *pipelineHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.Any()
		return true
	})

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
	}
	formatted, err := h.logger.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.logger.outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

// WithAttrs returns a copy carrying extra base attributes.
func (h *pipelineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	if len(attrs) > 0 {
		nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	}
	return &nh
}

// WithGroup is accepted but grouping is flattened by this pipeline.
func (h *pipelineHandler) WithGroup(string) slog.Handler { return h }
