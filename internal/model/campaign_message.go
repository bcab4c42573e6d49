package model

import "time"

// CampaignMessage is the per-target join row of a campaign job. Once the
// dispatch worker hands the message to the provider, ExternalMessageID holds
// the provider's message id; delivery status callbacks are keyed by that id
// and resolved back to the owning job through this row.
//
// Counted marks whether this message has claimed its one slot in the job's
// delivered/read/failed counters. The first counted status wins the slot;
// later promotions (delivered -> read) update Status but not the counters,
// which keeps delivered+read+failed bounded by target_count.
type CampaignMessage struct {
	ID                int            `db:"id" json:"id"`
	CampaignJobID     int            `db:"campaign_job_id" json:"campaign_job_id"`
	ContactID         int            `db:"contact_id" json:"contact_id"`
	ExternalMessageID string         `db:"external_message_id" json:"external_message_id,omitempty"`
	Status            DeliveryStatus `db:"status" json:"status"`
	Counted           bool           `db:"counted" json:"counted"`
	RenderedContent   string         `db:"rendered_content" json:"rendered_content"`
	LastError         string         `db:"last_error" json:"last_error,omitempty"`
	RetryCount        int            `db:"retry_count" json:"retry_count"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time      `db:"updated_at" json:"updated_at"`
}
