package appErrors

import (
	"errors"
	"fmt"
)

// ErrDuplicateEvent is returned when an idempotency guard rejects a second
// application of the same provider event. Callers treat it as success.
var ErrDuplicateEvent = errors.New("event already processed")

// ErrCampaignJobNotFound is a sentinel error
type ErrCampaignJobNotFound struct {
	JobID int
}

func (e *ErrCampaignJobNotFound) Error() string {
	return fmt.Sprintf("campaign job with ID %d not found", e.JobID)
}

// Helper constructor
func NewCampaignJobNotFound(id int) error {
	return &ErrCampaignJobNotFound{JobID: id}
}

// ErrUnknownChannel marks a webhook delivery for a channel identifier no
// tenant has registered. It is acknowledged to the provider and dropped.
type ErrUnknownChannel struct {
	ChannelID string
}

func (e *ErrUnknownChannel) Error() string {
	return fmt.Sprintf("no tenant bound to channel %q", e.ChannelID)
}

func NewUnknownChannel(channelID string) error {
	return &ErrUnknownChannel{ChannelID: channelID}
}

// ErrContactNotFound is a sentinel error
type ErrContactNotFound struct {
	ContactID int
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact with ID %d not found", e.ContactID)
}

func NewContactNotFound(id int) error {
	return &ErrContactNotFound{ContactID: id}
}
