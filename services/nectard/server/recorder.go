package server

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"nectar/core/events"
	coretypes "nectar/core/types"
	"nectar/services/nectard/storage"
)

// auditRecorder bridges engine events into the sqlite audit trail and the
// structured log.
type auditRecorder struct {
	store *storage.Storage
	log   *slog.Logger
}

func newAuditRecorder(store *storage.Storage, log *slog.Logger) *auditRecorder {
	return &auditRecorder{store: store, log: log.With("component", "audit")}
}

type renderable interface {
	Event() *coretypes.Event
}

// Emit implements events.Emitter. Persistence failures are logged but never
// interrupt the engine, which has already committed.
func (r *auditRecorder) Emit(evt events.Event) {
	rendered, ok := evt.(renderable)
	if !ok {
		r.log.Warn("unrenderable event", "type", evt.EventType())
		return
	}
	e := rendered.Event()
	rec := storage.AuditRecord{
		Kind:      e.Type,
		Partner:   e.Attributes["partner"],
		VaultID:   e.Attributes["vault"],
		Holder:    e.Attributes["holder"],
		Detail:    e.Attributes["category"],
		CreatedAt: time.Now().UTC(),
	}
	if raw, ok := e.Attributes["amount"]; ok {
		if amount, err := strconv.ParseUint(raw, 10, 64); err == nil {
			rec.Amount = amount
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.store.RecordAudit(ctx, rec); err != nil {
		r.log.Error("persist audit event", "type", e.Type, "error", err)
		return
	}
	r.log.Info("event", "type", e.Type, "attributes", e.Attributes)
}

var _ events.Emitter = (*auditRecorder)(nil)
