package model

// DeliveryStatus is the per-message delivery state reported by the provider.
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSent      DeliveryStatus = "sent"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusRead      DeliveryStatus = "read"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// Valid reports whether s is a status this system knows about.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryStatusPending, DeliveryStatusSent, DeliveryStatusDelivered, DeliveryStatusRead, DeliveryStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the provider will send no further updates for a
// message in this state.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryStatusRead || s == DeliveryStatusFailed
}

// Counted reports whether this status is one of the three job progress
// counters owned by the aggregator (sent is owned by the dispatch flow).
func (s DeliveryStatus) Counted() bool {
	return s == DeliveryStatusDelivered || s == DeliveryStatusRead || s == DeliveryStatusFailed
}

// CampaignJobStatus is the lifecycle state of a campaign job.
type CampaignJobStatus string

const (
	JobStatusPending    CampaignJobStatus = "pending"
	JobStatusProcessing CampaignJobStatus = "processing"
	JobStatusRetrying   CampaignJobStatus = "retrying"
	JobStatusCompleted  CampaignJobStatus = "completed"
	JobStatusFailed     CampaignJobStatus = "failed"
)
