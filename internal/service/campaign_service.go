package service

import (
	"fmt"
	"log/slog"
	"strings"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// SendTopic is the queue carrying outbound send jobs to the dispatch worker.
const SendTopic = "campaign_sends"

// SendJob is one queued outbound message, by campaign_messages row id.
type SendJob struct {
	CampaignMessageID int `json:"campaign_message_id"`
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	ContactRepo  repository.ContactRepositoryInterface
	Queue        queue.Queue
	Logger       *slog.Logger
}

// Result struct for Dispatch
type DispatchResult struct {
	JobID          int    `json:"campaign_job_id"`
	MessagesQueued int    `json:"messages_queued"`
	Status         string `json:"status"`
}

// CreateJob records a new campaign job and its per-target message rows. The
// target list is frozen here; target_count is what the aggregator's
// completion check measures against.
func (s *CampaignService) CreateJob(tenantID, name, channel, template string, contactIDs []int) (*model.CampaignJob, error) {
	if strings.TrimSpace(template) == "" {
		return nil, fmt.Errorf("template cannot be empty")
	}
	if len(contactIDs) == 0 {
		return nil, fmt.Errorf("campaign needs at least one target contact")
	}

	job := &model.CampaignJob{
		TenantID:    tenantID,
		Name:        name,
		Channel:     channel,
		Provider:    "whatsapp",
		Template:    template,
		TargetCount: len(contactIDs),
		Status:      model.JobStatusPending,
	}
	if err := s.CampaignRepo.CreateJob(job); err != nil {
		return nil, err
	}

	for _, contactID := range contactIDs {
		if _, err := s.CampaignRepo.CreateMessage(job.ID, contactID); err != nil {
			s.Logger.Error("failed to create campaign message",
				"campaign_job_id", job.ID, "contact_id", contactID, "error", err)
			return nil, err
		}
	}
	return job, nil
}

// Dispatch renders any unrendered targets and enqueues every unsent message
// for the worker. Safe to call twice: sent messages (those already stamped
// with a provider id) are skipped, and the worker skips stamped rows again
// on redelivery.
func (s *CampaignService) Dispatch(jobID int) (*DispatchResult, error) {
	job, err := s.CampaignRepo.GetJob(jobID)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case model.JobStatusCompleted, model.JobStatusFailed:
		return nil, fmt.Errorf("campaign job cannot be dispatched in status: %s", job.Status)
	}

	msgs, err := s.CampaignRepo.ListMessagesByJob(jobID)
	if err != nil {
		return nil, err
	}

	result := &DispatchResult{JobID: jobID, Status: string(job.Status)}
	for _, msg := range msgs {
		if msg.ExternalMessageID != "" {
			continue // already handed to the provider
		}

		if msg.RenderedContent == "" {
			contact, err := s.ContactRepo.GetByID(msg.ContactID)
			if err != nil {
				s.Logger.Error("failed to load contact for rendering",
					"contact_id", msg.ContactID, "error", err)
				continue
			}
			if contact == nil {
				s.Logger.Warn("campaign target contact missing", "contact_id", msg.ContactID)
				continue
			}
			rendered := RenderForContact(job.Template, contact)
			if err := s.CampaignRepo.UpdateMessageContent(msg.ID, rendered); err != nil {
				s.Logger.Error("failed to store rendered content", "message_id", msg.ID, "error", err)
				continue
			}
		}

		if err := s.Queue.Publish(SendTopic, SendJob{CampaignMessageID: msg.ID}); err != nil {
			s.Logger.Error("failed to enqueue send job", "message_id", msg.ID, "error", err)
			continue
		}
		result.MessagesQueued++
	}

	return result, nil
}

// ListJobs fetches campaign jobs with pagination
func (s *CampaignService) ListJobs(page, pageSize int, tenantID, status string) ([]model.CampaignJob, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.ListJobs(offset, pageSize, tenantID, status)
	if err != nil {
		return nil, nil, err
	}

	jobs := make([]model.CampaignJob, len(ptrs))
	for i, j := range ptrs {
		jobs[i] = *j
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}
	return jobs, pagination, nil
}

// RenderPreview renders the job template against one target contact without
// touching any stored state.
func (s *CampaignService) RenderPreview(jobID, contactID int, overrideTemplate *string) (string, error) {
	job, err := s.CampaignRepo.GetJob(jobID)
	if err != nil {
		return "", err
	}

	contact, err := s.ContactRepo.GetByID(contactID)
	if err != nil {
		return "", err
	}
	if contact == nil {
		return "", appErrors.NewContactNotFound(contactID)
	}

	template := job.Template
	if overrideTemplate != nil && strings.TrimSpace(*overrideTemplate) != "" {
		template = *overrideTemplate
	}
	if strings.TrimSpace(template) == "" {
		return "", fmt.Errorf("template cannot be empty")
	}
	return RenderForContact(template, contact), nil
}
