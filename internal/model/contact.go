package model

import "time"

// Contact is a customer record owned by one tenant. At most one contact
// exists per (tenant_id, channel_address); inbound messages and lead forms
// both funnel through the same dedup contract before touching this table.
type Contact struct {
	ID              int        `db:"id" json:"id"`
	TenantID        string     `db:"tenant_id" json:"tenant_id"`
	ChannelAddress  string     `db:"channel_address" json:"channel_address"`
	Email           string     `db:"email" json:"email,omitempty"`
	DisplayName     string     `db:"display_name" json:"display_name"`
	Source          string     `db:"source" json:"source"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
	LastContactedAt *time.Time `db:"last_contacted_at" json:"last_contacted_at,omitempty"`
}

// ContactNote is one entry in a contact's append-only notes log. Notes are
// rows, not a growing string, so prior entries can never be overwritten.
type ContactNote struct {
	ID        int       `db:"id" json:"id"`
	ContactID int       `db:"contact_id" json:"contact_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
