package model

import "time"

// InboundEvent is the durable copy of one inbound provider message, keyed by
// the provider message id. The row doubles as the idempotency guard for
// contact reconciliation: if the id is already present, the contact mutation
// for it has either happened or is owed to the backfill reconciler.
type InboundEvent struct {
	MessageID   string     `db:"message_id" json:"message_id"`
	TenantID    string     `db:"tenant_id" json:"tenant_id"`
	FromAddress string     `db:"from_address" json:"from_address"`
	ChannelID   string     `db:"channel_id" json:"channel_id"`
	MsgType     string     `db:"msg_type" json:"msg_type"`
	BodySummary string     `db:"body_summary" json:"body_summary"`
	ProfileName string     `db:"profile_name" json:"profile_name,omitempty"`
	OccurredAt  time.Time  `db:"occurred_at" json:"occurred_at"`
	ReceivedAt  time.Time  `db:"received_at" json:"received_at"`
	ProcessedAt *time.Time `db:"processed_at" json:"processed_at,omitempty"`
}
