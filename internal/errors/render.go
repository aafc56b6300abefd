package errors

import (
	"encoding/json"
	"log/slog"
)

var (
	_ slog.LogValuer = (*MaktabaError)(nil)
	_ json.Marshaler = (*MaktabaError)(nil)
)

// LogValue renders the classified error as a slog group, so a handler
// emits kind and retryability instead of one flat string.
func (e *MaktabaError) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, 5+len(e.Details))
	attrs = append(attrs,
		slog.String("kind", string(e.Kind)),
		slog.String("message", e.Message),
		slog.Bool("retryable", e.Retryable),
	)
	if e.Cause != nil {
		attrs = append(attrs, slog.String("cause", e.Cause.Error()))
	}
	if e.Suggestion != "" {
		attrs = append(attrs, slog.String("suggestion", e.Suggestion))
	}
	for k, v := range e.Details {
		attrs = append(attrs, slog.String("detail_"+k, v))
	}
	return slog.GroupValue(attrs...)
}

// MarshalJSON serializes the error with snake_case keys for machine
// consumers.
func (e *MaktabaError) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind       string            `json:"kind"`
		Message    string            `json:"message"`
		Details    map[string]string `json:"details,omitempty"`
		Suggestion string            `json:"suggestion,omitempty"`
		Cause      string            `json:"cause,omitempty"`
		Retryable  bool              `json:"retryable"`
	}{
		Kind:       string(e.Kind),
		Message:    e.Message,
		Details:    e.Details,
		Suggestion: e.Suggestion,
		Retryable:  e.Retryable,
	}
	if e.Cause != nil {
		out.Cause = e.Cause.Error()
	}
	return json.Marshal(out)
}
