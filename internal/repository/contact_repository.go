package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// ContactRepositoryInterface defines methods used by the lead service, the
// webhook reconciler and the dashboard read model.
type ContactRepositoryInterface interface {
	GetByID(id int) (*model.Contact, error)
	FindByAddress(tenantID, channelAddress string) (*model.Contact, error)
	FindByEmail(tenantID, email string) (*model.Contact, error)
	Create(c *model.Contact) error
	// AppendNote adds a note. A non-empty messageID makes the append
	// idempotent: replaying the same provider message never duplicates it.
	AppendNote(contactID int, body, messageID string) error
	TouchLastContacted(contactID int, at time.Time) error
	ListByTenant(tenantID string, offset, limit int) ([]model.Contact, int, error)
	ListNotes(contactID int) ([]model.ContactNote, error)
}

// ContactRepository is the concrete implementation
type ContactRepository struct {
	DB *sql.DB
}

const contactColumns = `id, tenant_id, channel_address, email, display_name, source, created_at, last_contacted_at`

func (r *ContactRepository) scanContact(row *sql.Row) (*model.Contact, error) {
	var c model.Contact
	var email, displayName sql.NullString
	err := row.Scan(&c.ID, &c.TenantID, &c.ChannelAddress, &email, &displayName, &c.Source, &c.CreatedAt, &c.LastContactedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	c.Email = email.String
	c.DisplayName = displayName.String
	return &c, nil
}

func (r *ContactRepository) GetByID(id int) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return r.scanContact(r.DB.QueryRow(query, id))
}

// FindByAddress looks up the single contact a tenant may have per normalized
// channel address.
func (r *ContactRepository) FindByAddress(tenantID, channelAddress string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND channel_address = $2`
	return r.scanContact(r.DB.QueryRow(query, tenantID, channelAddress))
}

func (r *ContactRepository) FindByEmail(tenantID, email string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 AND email = $2`
	return r.scanContact(r.DB.QueryRow(query, tenantID, email))
}

// Create inserts a new contact. The UNIQUE(tenant_id, channel_address)
// constraint is the last line of defense for the dedup invariant; callers
// translate the unique-violation error into a merge.
func (r *ContactRepository) Create(c *model.Contact) error {
	c.CreatedAt = time.Now()
	query := `
        INSERT INTO contacts (tenant_id, channel_address, email, display_name, source, created_at, last_contacted_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.TenantID, c.ChannelAddress, nullable(c.Email), nullable(c.DisplayName),
		c.Source, c.CreatedAt, c.LastContactedAt,
	).Scan(&c.ID)
}

// AppendNote adds one row to the contact's append-only notes log. There is
// deliberately no update or delete counterpart. message_id carries a partial
// unique index, so a backfill replay of an already-noted provider message
// loses the insert and changes nothing.
func (r *ContactRepository) AppendNote(contactID int, body, messageID string) error {
	query := `
        INSERT INTO contact_notes (contact_id, body, message_id, created_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT DO NOTHING
    `
	_, err := r.DB.Exec(query, contactID, body, nullable(messageID))
	return err
}

func (r *ContactRepository) TouchLastContacted(contactID int, at time.Time) error {
	query := `
        UPDATE contacts SET last_contacted_at = $1
        WHERE id = $2 AND (last_contacted_at IS NULL OR last_contacted_at < $1)
    `
	_, err := r.DB.Exec(query, at, contactID)
	return err
}

func (r *ContactRepository) ListByTenant(tenantID string, offset, limit int) ([]model.Contact, int, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE tenant_id = $1 ORDER BY id DESC LIMIT $2 OFFSET $3`
	rows, err := r.DB.Query(query, tenantID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var c model.Contact
		var email, displayName sql.NullString
		if err := rows.Scan(&c.ID, &c.TenantID, &c.ChannelAddress, &email, &displayName, &c.Source, &c.CreatedAt, &c.LastContactedAt); err != nil {
			return nil, 0, err
		}
		c.Email = email.String
		c.DisplayName = displayName.String
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM contacts WHERE tenant_id = $1`, tenantID).Scan(&total); err != nil {
		return nil, 0, err
	}
	return contacts, total, nil
}

func (r *ContactRepository) ListNotes(contactID int) ([]model.ContactNote, error) {
	query := `SELECT id, contact_id, body, created_at FROM contact_notes WHERE contact_id = $1 ORDER BY id ASC`
	rows, err := r.DB.Query(query, contactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []model.ContactNote{}
	for rows.Next() {
		var n model.ContactNote
		if err := rows.Scan(&n.ID, &n.ContactID, &n.Body, &n.CreatedAt); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ ContactRepositoryInterface = (*ContactRepository)(nil)
