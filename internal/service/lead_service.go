package service

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// Lead is one identity signal entering the funnel: an embed form submit, a
// landing-page form submit, or an inbound WhatsApp message. All three go
// through the same dedup contract.
type Lead struct {
	TenantID   string
	Name       string
	Phone      string
	Email      string
	Message    string
	Source     string
	OccurredAt time.Time

	// MessageID is the provider message id for inbound-message leads, empty
	// for form submissions. When set, the note append is idempotent on it.
	MessageID string
}

// LeadService enforces the lead-capture dedup contract: the dedupe key is
// (tenant, phone normalized to E.164-like digits) when a phone is present,
// else (tenant, lowercased email). A collision merges by appending to notes
// and refreshing last_contacted_at; it never creates a second record, and it
// never overwrites the first-touch source.
type LeadService struct {
	ContactRepo repository.ContactRepositoryInterface
	Logger      *slog.Logger
}

// NormalizePhone reduces a phone number to its E.164-like digit string.
// Returns "" when nothing dialable remains.
func NormalizePhone(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Capture upserts the contact for a lead. Returns the contact and whether it
// was newly created.
func (s *LeadService) Capture(l Lead) (*model.Contact, bool, error) {
	phone := NormalizePhone(l.Phone)
	email := NormalizeEmail(l.Email)
	if phone == "" && email == "" {
		return nil, false, fmt.Errorf("lead has no phone or email identity signal")
	}

	occurred := l.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now().UTC()
	}

	existing, err := s.find(l.TenantID, phone, email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, s.merge(existing, l, occurred)
	}

	contact := &model.Contact{
		TenantID:        l.TenantID,
		ChannelAddress:  phone,
		Email:           email,
		DisplayName:     displayName(l.Name, phone, email),
		Source:          l.Source,
		LastContactedAt: &occurred,
	}
	if err := s.ContactRepo.Create(contact); err != nil {
		if isUniqueViolation(err) {
			// Lost a creation race for the same identity; merge into the
			// winner instead.
			winner, ferr := s.find(l.TenantID, phone, email)
			if ferr != nil {
				return nil, false, ferr
			}
			if winner != nil {
				return winner, false, s.merge(winner, l, occurred)
			}
		}
		return nil, false, err
	}

	if l.Message != "" {
		if err := s.ContactRepo.AppendNote(contact.ID, noteBody(l), l.MessageID); err != nil {
			return nil, false, err
		}
	}
	return contact, true, nil
}

func (s *LeadService) find(tenantID, phone, email string) (*model.Contact, error) {
	if phone != "" {
		return s.ContactRepo.FindByAddress(tenantID, phone)
	}
	return s.ContactRepo.FindByEmail(tenantID, email)
}

// merge enriches an existing contact. Source attribution stays whatever the
// first touch set.
func (s *LeadService) merge(c *model.Contact, l Lead, occurred time.Time) error {
	if l.Message != "" {
		if err := s.ContactRepo.AppendNote(c.ID, noteBody(l), l.MessageID); err != nil {
			return err
		}
	}
	return s.ContactRepo.TouchLastContacted(c.ID, occurred)
}

func noteBody(l Lead) string {
	return fmt.Sprintf("[%s] %s", l.Source, l.Message)
}

func displayName(name, phone, email string) string {
	if name != "" {
		return name
	}
	if phone != "" {
		return "+" + phone
	}
	return email
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
