package service

import (
	"log/slog"

	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/provider"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// MessageSender is the outbound provider call the worker needs.
type MessageSender interface {
	SendText(channelID, to, body string) (string, error)
}

const maxSendRetries = 3

// DispatchWorker processes queued outbound send jobs. It owns the job
// lifecycle transitions the webhook aggregator does not: processing,
// retrying, whole-job failed, and the sent counter.
type DispatchWorker struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	BindingRepo  repository.BindingRepositoryInterface
	Sender       MessageSender
	Logger       *slog.Logger
}

// Handle sends one campaign message. A nil return acknowledges the queue
// job; a non-nil return asks the queue to redeliver (transient failures
// only). Redelivery of an already-sent message is a no-op because the
// provider id stamp is guarded.
func (w *DispatchWorker) Handle(job SendJob) error {
	msg, err := w.CampaignRepo.GetMessageByID(job.CampaignMessageID)
	if err != nil {
		return err
	}
	if msg == nil {
		w.Logger.Warn("send job for unknown message dropped", "campaign_message_id", job.CampaignMessageID)
		return nil
	}
	if msg.ExternalMessageID != "" {
		// Duplicate queue delivery after a successful send.
		return nil
	}

	campaignJob, err := w.CampaignRepo.GetJob(msg.CampaignJobID)
	if err != nil {
		return err
	}

	// First send attempt moves a pending job to processing.
	if err := w.CampaignRepo.MarkJobProcessing(campaignJob.ID); err != nil {
		return err
	}

	contact, err := w.ContactRepo.GetByID(msg.ContactID)
	if err != nil {
		return err
	}
	if contact == nil {
		w.Logger.Warn("campaign target contact missing", "contact_id", msg.ContactID)
		return w.failMessage(msg, "target contact no longer exists")
	}

	binding, err := w.BindingRepo.FindFirstByTenant(campaignJob.TenantID)
	if err != nil {
		return err
	}
	if binding == nil {
		// No sending channel at all is a whole-job problem, not a
		// per-message one.
		w.Logger.Error("tenant has no channel binding, failing job",
			"campaign_job_id", campaignJob.ID, "tenant_id", campaignJob.TenantID)
		return w.CampaignRepo.MarkJobFailed(campaignJob.ID, "tenant has no sending channel configured")
	}

	externalID, err := w.Sender.SendText(binding.ChannelID, contact.ChannelAddress, msg.RenderedContent)
	if err != nil {
		if provider.IsTransient(err) && msg.RetryCount < maxSendRetries {
			w.Logger.Warn("transient send failure, requeueing",
				"campaign_message_id", msg.ID, "attempt", msg.RetryCount+1, "error", err)
			if rerr := w.CampaignRepo.RecordMessageRetry(msg.ID, err.Error()); rerr != nil {
				return rerr
			}
			if rerr := w.CampaignRepo.MarkJobRetrying(campaignJob.ID); rerr != nil {
				return rerr
			}
			return err // redeliver
		}
		w.Logger.Error("permanent send failure",
			"campaign_message_id", msg.ID, "error", err)
		if ferr := w.failMessage(msg, err.Error()); ferr != nil {
			return ferr
		}
		return w.CampaignRepo.SetJobLastError(campaignJob.ID, err.Error())
	}

	stamped, err := w.CampaignRepo.MarkMessageSent(msg.ID, externalID)
	if err != nil {
		return err
	}
	if stamped {
		if err := w.CampaignRepo.IncrementSent(campaignJob.ID); err != nil {
			return err
		}
		w.Logger.Info("campaign message sent",
			"campaign_message_id", msg.ID, "external_message_id", externalID)
	}
	return nil
}

// failMessage records a send-time failure and counts it toward the job's
// failed counter through the same claimed-slot path the aggregator uses, so
// completion still fires for jobs with unsendable targets. One transaction:
// a claimed slot must never commit without its increment.
func (w *DispatchWorker) failMessage(msg *model.CampaignMessage, reason string) error {
	return w.CampaignRepo.WithTx(func(c repository.CampaignRepositoryInterface) error {
		if err := c.MarkMessageSendFailed(msg.ID, reason); err != nil {
			return err
		}

		claimed, err := c.ClaimMessageCounted(msg.ID)
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		progress, target, err := c.IncrementCounter(msg.CampaignJobID, model.DeliveryStatusFailed)
		if err != nil {
			return err
		}
		if progress.Terminal() >= target {
			return c.CompleteJob(msg.CampaignJobID)
		}
		return nil
	})
}
