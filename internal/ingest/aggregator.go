package ingest

import (
	"fmt"
	"log/slog"

	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// Outcome says what a status event did to the campaign store.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUntracked Outcome = "untracked"
)

// Aggregator rolls delivery-status callbacks up into campaign job progress.
//
// Counting rule: each message claims at most one slot across the
// delivered/read/failed counters, won by the first counted status observed
// for it. Later statuses still advance the per-message record (terminal
// states are never regressed) but leave the counters alone. That keeps
// every counter monotone and delivered+read+failed bounded by target_count,
// and makes the completion check a plain equality.
type Aggregator struct {
	Campaigns repository.CampaignRepositoryInterface
	Logger    *slog.Logger
}

func (a *Aggregator) Process(ev *model.DeliveryStatusEvent) (Outcome, error) {
	msg, err := a.Campaigns.FindMessageByExternalID(ev.MessageID)
	if err != nil {
		return "", fmt.Errorf("resolve message %s: %w", ev.MessageID, err)
	}
	if msg == nil {
		// A status for something outside any tracked campaign, e.g. a
		// one-off reply sent from the inbox. Acknowledge and move on.
		a.Logger.Debug("status for untracked message", "external_message_id", ev.MessageID)
		return OutcomeUntracked, nil
	}

	// The marker and everything it guards commit together. A marker that
	// landed without its increment would make the provider's redelivery of
	// the same event read as "already applied" and lose the count for good.
	outcome := OutcomeApplied
	err = a.Campaigns.WithTx(func(c repository.CampaignRepositoryInterface) error {
		// Create-if-absent marker: two concurrent deliveries of the identical
		// event race here and exactly one proceeds.
		fresh, err := c.InsertStatusMark(ev.MessageID, ev.NewStatus)
		if err != nil {
			return fmt.Errorf("mark status %s/%s: %w", ev.MessageID, ev.NewStatus, err)
		}
		if !fresh {
			outcome = OutcomeDuplicate
			return nil
		}

		if err := c.AdvanceMessageStatus(msg.ID, ev.NewStatus); err != nil {
			return fmt.Errorf("advance message %d: %w", msg.ID, err)
		}

		if ev.NewStatus == model.DeliveryStatusFailed {
			detail := ev.ErrorDetail
			if detail == "" {
				detail = fmt.Sprintf("message %s failed", ev.MessageID)
			}
			// Last failure wins; display-only, other messages' counters are
			// untouched.
			if err := c.SetJobLastError(msg.CampaignJobID, detail); err != nil {
				return fmt.Errorf("set job %d last error: %w", msg.CampaignJobID, err)
			}
		}

		if !ev.NewStatus.Counted() {
			return nil
		}

		claimed, err := c.ClaimMessageCounted(msg.ID)
		if err != nil {
			return fmt.Errorf("claim counter slot for message %d: %w", msg.ID, err)
		}
		if !claimed {
			// Already counted under an earlier status (delivered -> read
			// promotion, or a concurrent different-status delivery won).
			return nil
		}

		progress, target, err := c.IncrementCounter(msg.CampaignJobID, ev.NewStatus)
		if err != nil {
			return fmt.Errorf("increment %s for job %d: %w", ev.NewStatus, msg.CampaignJobID, err)
		}

		if progress.Terminal() >= target {
			if err := c.CompleteJob(msg.CampaignJobID); err != nil {
				return fmt.Errorf("complete job %d: %w", msg.CampaignJobID, err)
			}
			a.Logger.Info("campaign job completed", "campaign_job_id", msg.CampaignJobID,
				"delivered", progress.Delivered, "read", progress.Read, "failed", progress.Failed)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return outcome, nil
}
