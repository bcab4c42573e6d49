package model

import "time"

// DeliveryStatusEvent is one provider callback about an outbound message,
// keyed by the provider message id. The provider delivers at least once and
// out of order; everything downstream of this type must be idempotent.
type DeliveryStatusEvent struct {
	MessageID   string         `json:"message_id"`
	NewStatus   DeliveryStatus `json:"new_status"`
	OccurredAt  time.Time      `json:"occurred_at"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}
