package audit

import (
	"context"
	"log/slog"
	"time"
)

// Recorder wraps a Store with the session identity of one agent process.
// A Recorder with a nil store is a no-op, so callers never branch on whether
// auditing is enabled.
type Recorder struct {
	store     *Store
	agent     string
	sessionID string
}

// NewRecorder creates a recorder for an agent session. store may be nil.
func NewRecorder(store *Store, agent, sessionID string) *Recorder {
	return &Recorder{store: store, agent: agent, sessionID: sessionID}
}

// RecordOperation logs one license operation with its outcome. Audit failures
// are logged and swallowed: the operation itself already happened and its
// result must still reach the caller.
func (r *Recorder) RecordOperation(ctx context.Context, operation, principal, licenseConfig string, opErr error, duration time.Duration) {
	if r == nil || r.store == nil {
		return
	}

	rec := &Record{
		SessionID:     r.sessionID,
		Agent:         r.agent,
		Operation:     operation,
		Principal:     principal,
		LicenseConfig: licenseConfig,
		Status:        "success",
		DurationMs:    duration.Milliseconds(),
	}
	if opErr != nil {
		rec.Status = "error"
		rec.Error = opErr.Error()
	}

	if err := r.store.Record(ctx, rec); err != nil {
		slog.Warn("failed to record audit event", "operation", operation, "err", err)
	}
}
