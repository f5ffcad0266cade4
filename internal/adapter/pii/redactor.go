package pii

import (
	"log/slog"
)

const RedactedPlaceholder = "[REDACTED]"

// Redactor masks sensitive keys inside an alert's details before it is persisted.
type Redactor struct {
	fieldsToRedact map[string]struct{} // Use a map for O(1) lookups
	logger         *slog.Logger
}

// NewRedactor creates a new Redactor instance with a given set of fields to redact.
func NewRedactor(fields []string, logger *slog.Logger) *Redactor {
	fieldSet := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		fieldSet[field] = struct{}{}
	}
	return &Redactor{
		fieldsToRedact: fieldSet,
		logger:         logger,
	}
}

// Redact returns details with every configured key replaced by the placeholder.
// Nested maps are walked. The input map is never modified; when nothing matches
// it is returned as is and redacted is false.
func (r *Redactor) Redact(details map[string]any) (out map[string]any, redacted bool) {
	if r == nil || len(r.fieldsToRedact) == 0 || len(details) == 0 {
		return details, false
	}

	out = make(map[string]any, len(details))
	for k, v := range details {
		if _, ok := r.fieldsToRedact[k]; ok {
			out[k] = RedactedPlaceholder
			redacted = true
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			masked, nestedRedacted := r.Redact(nested)
			out[k] = masked
			redacted = redacted || nestedRedacted
			continue
		}
		out[k] = v
	}

	if !redacted {
		return details, false
	}
	r.logger.Debug("redacted sensitive detail fields")
	return out, true
}
