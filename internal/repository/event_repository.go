package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// EventRepositoryInterface is the durable raw-event log for inbound
// messages. The message_id primary key is the idempotency guard the contact
// reconciler relies on.
type EventRepositoryInterface interface {
	// Insert stores the event if its message_id is unseen. Returns false
	// when the row already existed (duplicate provider delivery).
	Insert(ev *model.InboundEvent) (bool, error)
	MarkProcessed(messageID string, at time.Time) error
	// ListUnprocessed returns events durably recorded but never applied to a
	// contact (crash after the insert), oldest first.
	ListUnprocessed(olderThan time.Time, limit int) ([]*model.InboundEvent, error)
}

type EventRepository struct {
	DB *sql.DB
}

func (r *EventRepository) Insert(ev *model.InboundEvent) (bool, error) {
	query := `
        INSERT INTO inbound_events
            (message_id, tenant_id, from_address, channel_id, msg_type, body_summary, profile_name, occurred_at, received_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (message_id) DO NOTHING
    `
	res, err := r.DB.Exec(query,
		ev.MessageID, ev.TenantID, ev.FromAddress, ev.ChannelID,
		ev.MsgType, ev.BodySummary, ev.ProfileName, ev.OccurredAt, ev.ReceivedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *EventRepository) MarkProcessed(messageID string, at time.Time) error {
	query := `UPDATE inbound_events SET processed_at=$1 WHERE message_id=$2`
	_, err := r.DB.Exec(query, at, messageID)
	return err
}

func (r *EventRepository) ListUnprocessed(olderThan time.Time, limit int) ([]*model.InboundEvent, error) {
	query := `
        SELECT message_id, tenant_id, from_address, channel_id, msg_type, body_summary, profile_name, occurred_at, received_at
        FROM inbound_events
        WHERE processed_at IS NULL AND received_at < $1
        ORDER BY received_at ASC
        LIMIT $2
    `
	rows, err := r.DB.Query(query, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := []*model.InboundEvent{}
	for rows.Next() {
		ev := &model.InboundEvent{}
		if err := rows.Scan(
			&ev.MessageID, &ev.TenantID, &ev.FromAddress, &ev.ChannelID,
			&ev.MsgType, &ev.BodySummary, &ev.ProfileName, &ev.OccurredAt, &ev.ReceivedAt,
		); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

var _ EventRepositoryInterface = (*EventRepository)(nil)
