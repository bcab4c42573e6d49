package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// same repository code runs standalone or transaction-bound.
type DBTX interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

// CampaignRepositoryInterface covers the campaign job store: job lifecycle
// and counters, per-target message records, and the per-(message, status)
// idempotency marks the aggregator leans on. Every mutating method here is a
// single SQL statement so concurrent webhook deliveries never need
// application-level locking; multi-statement units run under WithTx.
type CampaignRepositoryInterface interface {
	// WithTx runs fn against a view of this repository bound to a single
	// transaction. An error from fn rolls the whole unit back.
	WithTx(fn func(CampaignRepositoryInterface) error) error

	// Jobs
	CreateJob(job *model.CampaignJob) error
	GetJob(id int) (*model.CampaignJob, error)
	ListJobs(offset, limit int, tenantID string, status string) ([]*model.CampaignJob, int, error)
	MarkJobProcessing(jobID int) error
	MarkJobRetrying(jobID int) error
	MarkJobFailed(jobID int, lastError string) error
	CompleteJob(jobID int) error
	SetJobLastError(jobID int, lastError string) error
	IncrementSent(jobID int) error
	// IncrementCounter bumps exactly one of delivered/read/failed in place
	// and returns the fresh counters plus target_count.
	IncrementCounter(jobID int, status model.DeliveryStatus) (*model.CampaignProgress, int, error)

	// Messages
	CreateMessage(jobID, contactID int) (*model.CampaignMessage, error)
	GetMessageByID(id int) (*model.CampaignMessage, error)
	ListMessagesByJob(jobID int) ([]*model.CampaignMessage, error)
	FindMessageByExternalID(externalID string) (*model.CampaignMessage, error)
	UpdateMessageContent(id int, content string) error
	MarkMessageSent(id int, externalID string) (bool, error)
	RecordMessageRetry(id int, lastError string) error
	MarkMessageSendFailed(id int, lastError string) error
	AdvanceMessageStatus(id int, status model.DeliveryStatus) error
	ClaimMessageCounted(id int) (bool, error)

	// InsertStatusMark records a (message, status) observation with
	// create-if-absent semantics; false means the pair was already seen.
	InsertStatusMark(externalMessageID string, status model.DeliveryStatus) (bool, error)
}

type CampaignRepository struct {
	DB DBTX
}

func (r *CampaignRepository) WithTx(fn func(CampaignRepositoryInterface) error) error {
	db, ok := r.DB.(*sql.DB)
	if !ok {
		// Already transaction-bound; nesting joins the outer transaction.
		return fn(r)
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	if err := fn(&CampaignRepository{DB: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ====================== Jobs ======================

func (r *CampaignRepository) CreateJob(job *model.CampaignJob) error {
	job.CreatedAt = time.Now()
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	query := `
        INSERT INTO campaign_jobs (tenant_id, name, channel, provider, template, target_count, status, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		job.TenantID, job.Name, job.Channel, job.Provider, job.Template,
		job.TargetCount, job.Status, job.CreatedAt,
	).Scan(&job.ID)
}

const jobColumns = `id, tenant_id, name, channel, provider, template, target_count, status,
        sent_count, delivered_count, read_count, failed_count, last_error, created_at, updated_at`

func scanJob(scan func(...any) error) (*model.CampaignJob, error) {
	var j model.CampaignJob
	var lastError sql.NullString
	err := scan(
		&j.ID, &j.TenantID, &j.Name, &j.Channel, &j.Provider, &j.Template,
		&j.TargetCount, &j.Status,
		&j.Progress.Sent, &j.Progress.Delivered, &j.Progress.Read, &j.Progress.Failed,
		&lastError, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.LastError = lastError.String
	return &j, nil
}

func (r *CampaignRepository) GetJob(id int) (*model.CampaignJob, error) {
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE id=$1`
	job, err := scanJob(r.DB.QueryRow(query, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func (r *CampaignRepository) ListJobs(offset, limit int, tenantID string, status string) ([]*model.CampaignJob, int, error) {
	jobs := []*model.CampaignJob{}
	query := `SELECT ` + jobColumns + ` FROM campaign_jobs WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if tenantID != "" {
		query += fmt.Sprintf(" AND tenant_id=$%d", argPos)
		args = append(args, tenantID)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		j, err := scanJob(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaign_jobs WHERE 1=1`
	argsCount := []interface{}{}
	argPosCount := 1
	if tenantID != "" {
		countQuery += fmt.Sprintf(" AND tenant_id=$%d", argPosCount)
		argsCount = append(argsCount, tenantID)
		argPosCount++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPosCount)
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return jobs, total, nil
}

// MarkJobProcessing flips a pending job to processing when the first send
// attempt begins. A no-op for any other state.
func (r *CampaignRepository) MarkJobProcessing(jobID int) error {
	query := `UPDATE campaign_jobs SET status='processing', updated_at=NOW() WHERE id=$1 AND status='pending'`
	_, err := r.DB.Exec(query, jobID)
	return err
}

func (r *CampaignRepository) MarkJobRetrying(jobID int) error {
	query := `UPDATE campaign_jobs SET status='retrying', updated_at=NOW() WHERE id=$1 AND status IN ('pending','processing')`
	_, err := r.DB.Exec(query, jobID)
	return err
}

// MarkJobFailed is the whole-job failure state (provider account suspended
// and the like), owned by the dispatch flow. Per-message failures never set
// it.
func (r *CampaignRepository) MarkJobFailed(jobID int, lastError string) error {
	query := `UPDATE campaign_jobs SET status='failed', last_error=$1, updated_at=NOW() WHERE id=$2 AND status NOT IN ('completed','failed')`
	_, err := r.DB.Exec(query, lastError, jobID)
	return err
}

// CompleteJob transitions to completed. Guarded so a completed or failed job
// never reverts.
func (r *CampaignRepository) CompleteJob(jobID int) error {
	query := `UPDATE campaign_jobs SET status='completed', updated_at=NOW() WHERE id=$1 AND status NOT IN ('completed','failed')`
	_, err := r.DB.Exec(query, jobID)
	return err
}

func (r *CampaignRepository) SetJobLastError(jobID int, lastError string) error {
	query := `UPDATE campaign_jobs SET last_error=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, lastError, jobID)
	return err
}

func (r *CampaignRepository) IncrementSent(jobID int) error {
	query := `UPDATE campaign_jobs SET sent_count=sent_count+1, updated_at=NOW() WHERE id=$1`
	_, err := r.DB.Exec(query, jobID)
	return err
}

// IncrementCounter is a field-level increment at the storage layer, not a
// read-modify-write: concurrent deliveries for different messages of the
// same job race on this row.
func (r *CampaignRepository) IncrementCounter(jobID int, status model.DeliveryStatus) (*model.CampaignProgress, int, error) {
	var column string
	switch status {
	case model.DeliveryStatusDelivered:
		column = "delivered_count"
	case model.DeliveryStatusRead:
		column = "read_count"
	case model.DeliveryStatusFailed:
		column = "failed_count"
	default:
		return nil, 0, fmt.Errorf("status %q has no job counter", status)
	}

	query := fmt.Sprintf(`
        UPDATE campaign_jobs SET %s=%s+1, updated_at=NOW()
        WHERE id=$1
        RETURNING sent_count, delivered_count, read_count, failed_count, target_count
    `, column, column)

	var p model.CampaignProgress
	var target int
	err := r.DB.QueryRow(query, jobID).Scan(&p.Sent, &p.Delivered, &p.Read, &p.Failed, &target)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, appErrors.NewCampaignJobNotFound(jobID)
		}
		return nil, 0, err
	}
	return &p, target, nil
}

// ====================== Messages ======================

const messageColumns = `id, campaign_job_id, contact_id, external_message_id, status, counted,
        rendered_content, last_error, retry_count, created_at, updated_at`

func scanMessage(scan func(...any) error) (*model.CampaignMessage, error) {
	var m model.CampaignMessage
	var externalID, content, lastError sql.NullString
	err := scan(
		&m.ID, &m.CampaignJobID, &m.ContactID, &externalID, &m.Status, &m.Counted,
		&content, &lastError, &m.RetryCount, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.ExternalMessageID = externalID.String
	m.RenderedContent = content.String
	m.LastError = lastError.String
	return &m, nil
}

// CreateMessage is an idempotent find-or-insert on (job, contact), so a
// re-dispatched campaign never doubles its target rows.
func (r *CampaignRepository) CreateMessage(jobID, contactID int) (*model.CampaignMessage, error) {
	existing, err := r.getMessage(jobID, contactID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	query := `
        INSERT INTO campaign_messages (campaign_job_id, contact_id, status, counted, retry_count, created_at, updated_at)
        VALUES ($1, $2, 'pending', FALSE, 0, NOW(), NOW())
        ON CONFLICT (campaign_job_id, contact_id) DO NOTHING
        RETURNING ` + messageColumns
	msg, err := scanMessage(r.DB.QueryRow(query, jobID, contactID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			// Lost a creation race; the winner's row is the message.
			return r.getMessage(jobID, contactID)
		}
		return nil, err
	}
	return msg, nil
}

func (r *CampaignRepository) getMessage(jobID, contactID int) (*model.CampaignMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM campaign_messages WHERE campaign_job_id=$1 AND contact_id=$2`
	msg, err := scanMessage(r.DB.QueryRow(query, jobID, contactID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (r *CampaignRepository) ListMessagesByJob(jobID int) ([]*model.CampaignMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM campaign_messages WHERE campaign_job_id=$1 ORDER BY id ASC`
	rows, err := r.DB.Query(query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []*model.CampaignMessage{}
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func (r *CampaignRepository) GetMessageByID(id int) (*model.CampaignMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM campaign_messages WHERE id=$1`
	msg, err := scanMessage(r.DB.QueryRow(query, id).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

// FindMessageByExternalID is the bridge from a provider status callback to
// the owning campaign job. Returns (nil, nil) for messages this system never
// sent through a tracked campaign.
func (r *CampaignRepository) FindMessageByExternalID(externalID string) (*model.CampaignMessage, error) {
	query := `SELECT ` + messageColumns + ` FROM campaign_messages WHERE external_message_id=$1`
	msg, err := scanMessage(r.DB.QueryRow(query, externalID).Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return msg, nil
}

func (r *CampaignRepository) UpdateMessageContent(id int, content string) error {
	query := `UPDATE campaign_messages SET rendered_content=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, content, id)
	return err
}

// MarkMessageSent stamps the provider message id and moves the row to sent.
// Guarded on the id still being empty so a redelivered queue job cannot
// stamp twice; false means someone else already did.
func (r *CampaignRepository) MarkMessageSent(id int, externalID string) (bool, error) {
	query := `
        UPDATE campaign_messages
        SET status='sent', external_message_id=$1, last_error=NULL, updated_at=NOW()
        WHERE id=$2 AND external_message_id IS NULL
    `
	res, err := r.DB.Exec(query, externalID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordMessageRetry notes a transient send failure without changing the
// message state; the queue redelivers the job.
func (r *CampaignRepository) RecordMessageRetry(id int, lastError string) error {
	query := `UPDATE campaign_messages SET last_error=$1, retry_count=retry_count+1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, lastError, id)
	return err
}

func (r *CampaignRepository) MarkMessageSendFailed(id int, lastError string) error {
	query := `UPDATE campaign_messages SET status='failed', last_error=$1, retry_count=retry_count+1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, lastError, id)
	return err
}

// AdvanceMessageStatus records the latest observed status. Terminal states
// (read, failed) are never regressed by a late delivered.
func (r *CampaignRepository) AdvanceMessageStatus(id int, status model.DeliveryStatus) error {
	query := `UPDATE campaign_messages SET status=$1, updated_at=NOW() WHERE id=$2 AND status NOT IN ('read','failed')`
	_, err := r.DB.Exec(query, status, id)
	return err
}

// ClaimMessageCounted claims the message's single slot in the job counters.
// Exactly one caller ever gets true for a given message.
func (r *CampaignRepository) ClaimMessageCounted(id int) (bool, error) {
	query := `UPDATE campaign_messages SET counted=TRUE, updated_at=NOW() WHERE id=$1 AND NOT counted`
	res, err := r.DB.Exec(query, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ====================== Status marks ======================

func (r *CampaignRepository) InsertStatusMark(externalMessageID string, status model.DeliveryStatus) (bool, error) {
	query := `
        INSERT INTO message_status_marks (external_message_id, status, observed_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (external_message_id, status) DO NOTHING
    `
	res, err := r.DB.Exec(query, externalMessageID, status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
