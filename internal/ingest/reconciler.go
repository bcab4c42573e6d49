package ingest

import (
	"fmt"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
	"github.com/unclebandit/waleopard-backend/internal/service"
)

// Reconciler applies one inbound message to the contact store: durable raw
// event first, contact mutation second. The raw-event primary key is the
// idempotency guard; the provider delivers at least once and may deliver the
// same message id concurrently.
type Reconciler struct {
	Events repository.EventRepositoryInterface
	Leads  *service.LeadService
	Logger *slog.Logger
}

// Process handles a freshly delivered inbound message. Returns
// appErrors.ErrDuplicateEvent when the message id has been seen before;
// callers treat that as success.
//
// A failure recording the raw event aborts before any contact mutation so a
// later retry cannot double-append notes. A failure after the durable write
// leaves processed_at NULL, which is the backfill reconciler's queue.
func (r *Reconciler) Process(ev *model.InboundEvent) error {
	inserted, err := r.Events.Insert(ev)
	if err != nil {
		return fmt.Errorf("record inbound event %s: %w", ev.MessageID, err)
	}
	if !inserted {
		// Duplicate delivery: the contact mutation already happened, or is
		// owed to the backfill pass. Either way, not ours.
		r.Logger.Debug("duplicate inbound event skipped", "message_id", ev.MessageID)
		return appErrors.ErrDuplicateEvent
	}
	return r.apply(ev)
}

// Replay re-applies a durably recorded event that never made it to the
// contact store. Only the single-flight backfill loop calls this.
func (r *Reconciler) Replay(ev *model.InboundEvent) error {
	return r.apply(ev)
}

func (r *Reconciler) apply(ev *model.InboundEvent) error {
	_, created, err := r.Leads.Capture(service.Lead{
		TenantID:   ev.TenantID,
		Name:       ev.ProfileName,
		Phone:      ev.FromAddress,
		Message:    ev.BodySummary,
		Source:     "whatsapp_inbound",
		OccurredAt: ev.OccurredAt,
		MessageID:  ev.MessageID,
	})
	if err != nil {
		return fmt.Errorf("reconcile contact for event %s: %w", ev.MessageID, err)
	}
	if created {
		r.Logger.Info("contact created from inbound message",
			"tenant_id", ev.TenantID, "message_id", ev.MessageID)
	}

	if err := r.Events.MarkProcessed(ev.MessageID, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark event %s processed: %w", ev.MessageID, err)
	}
	return nil
}
