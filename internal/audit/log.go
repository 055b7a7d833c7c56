package audit

import (
	"context"
	"log/slog"

	"signbridge/pkg/attrs"
	"signbridge/pkg/requestcontext"
)

// Emitter is anything that accepts lifecycle events, usually a *Publisher.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// LogAudit is the shared helper for audit events across lifecycle services. It
// logs to the structured logger and, when a publisher is wired, emits an Event
// whose identity, source and reason are read from attrList.
func LogAudit(ctx context.Context, logger *slog.Logger, publisher Emitter, action Action, attrList ...any) {
	requestID := requestcontext.RequestID(ctx)
	if requestID != "" {
		attrList = append(attrList, "request_id", requestID)
	}
	args := append(attrList, "event", string(action), "log_type", "audit")
	if logger != nil {
		logger.InfoContext(ctx, string(action), args...)
	}

	if publisher == nil {
		return
	}
	err := publisher.Emit(ctx, Event{
		IdentityID: attrs.ExtractString(attrList, "identity_id"),
		Action:     action,
		Source:     attrs.ExtractString(attrList, "source"),
		Reason:     attrs.FirstString(attrList, "reason", "error"),
		RequestID:  requestID,
	})
	if err != nil && logger != nil {
		logger.WarnContext(ctx, "failed to emit audit event", "event", string(action), "error", err)
	}
}
