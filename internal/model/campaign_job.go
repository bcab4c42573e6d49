package model

import "time"

// CampaignProgress holds the monotonically non-decreasing per-job counters.
// sent is bumped by the dispatch worker; delivered/read/failed only by the
// webhook aggregator. delivered+read+failed never exceeds TargetCount.
type CampaignProgress struct {
	Sent      int `db:"sent_count" json:"sent"`
	Delivered int `db:"delivered_count" json:"delivered"`
	Read      int `db:"read_count" json:"read"`
	Failed    int `db:"failed_count" json:"failed"`
}

// Terminal is the number of targets that reached a terminal-ish state.
func (p CampaignProgress) Terminal() int {
	return p.Delivered + p.Read + p.Failed
}

type CampaignJob struct {
	ID          int               `db:"id" json:"id"`
	TenantID    string            `db:"tenant_id" json:"tenant_id"`
	Name        string            `db:"name" json:"name"`
	Channel     string            `db:"channel" json:"channel"`
	Provider    string            `db:"provider" json:"provider"`
	Template    string            `db:"template" json:"template"`
	TargetCount int               `db:"target_count" json:"target_count"`
	Status      CampaignJobStatus `db:"status" json:"status"`
	Progress    CampaignProgress  `json:"progress"`
	LastError   string            `db:"last_error" json:"last_error,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time        `db:"updated_at" json:"updated_at,omitempty"`
}
