package service

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/queue"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------- contact store ----------------

// memContactRepo enforces the (tenant, channel_address) uniqueness the real
// table carries, surfacing collisions as pq unique violations. missFinds makes
// the first N identity lookups miss, to stage the create race.
type memContactRepo struct {
	mu        sync.Mutex
	nextID    int
	records   map[int]*model.Contact
	notes     map[int][]model.ContactNote
	noteIDs   map[string]bool
	missFinds int
}

func newMemContactRepo() *memContactRepo {
	return &memContactRepo{records: map[int]*model.Contact{}, notes: map[int][]model.ContactNote{}}
}

func (r *memContactRepo) GetByID(id int) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.records[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (r *memContactRepo) FindByAddress(tenantID, addr string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missFinds > 0 {
		r.missFinds--
		return nil, nil
	}
	return r.findByAddressLocked(tenantID, addr), nil
}

func (r *memContactRepo) findByAddressLocked(tenantID, addr string) *model.Contact {
	for _, c := range r.records {
		if c.TenantID == tenantID && c.ChannelAddress == addr {
			cp := *c
			return &cp
		}
	}
	return nil
}

func (r *memContactRepo) FindByEmail(tenantID, email string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missFinds > 0 {
		r.missFinds--
		return nil, nil
	}
	for _, c := range r.records {
		if c.TenantID == tenantID && c.Email == email {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memContactRepo) Create(c *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ChannelAddress != "" && r.findByAddressLocked(c.TenantID, c.ChannelAddress) != nil {
		return &pq.Error{Code: "23505"}
	}
	r.nextID++
	c.ID = r.nextID
	c.CreatedAt = time.Now()
	cp := *c
	r.records[c.ID] = &cp
	return nil
}

func (r *memContactRepo) AppendNote(contactID int, body, messageID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if messageID != "" {
		if r.noteIDs == nil {
			r.noteIDs = map[string]bool{}
		}
		if r.noteIDs[messageID] {
			return nil
		}
		r.noteIDs[messageID] = true
	}
	r.notes[contactID] = append(r.notes[contactID], model.ContactNote{
		ContactID: contactID, Body: body, CreatedAt: time.Now(),
	})
	return nil
}

func (r *memContactRepo) TouchLastContacted(contactID int, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.records[contactID]; ok {
		if c.LastContactedAt == nil || c.LastContactedAt.Before(at) {
			at := at
			c.LastContactedAt = &at
		}
	}
	return nil
}

func (r *memContactRepo) ListByTenant(tenantID string, offset, limit int) ([]model.Contact, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []model.Contact{}
	for _, c := range r.records {
		if c.TenantID == tenantID {
			out = append(out, *c)
		}
	}
	return out, len(out), nil
}

func (r *memContactRepo) ListNotes(contactID int) ([]model.ContactNote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ContactNote{}, r.notes[contactID]...), nil
}

var _ repository.ContactRepositoryInterface = (*memContactRepo)(nil)

// ---------------- campaign store ----------------

type memCampaignRepo struct {
	mu       sync.Mutex
	nextJob  int
	nextMsg  int
	jobs     map[int]*model.CampaignJob
	messages map[int]*model.CampaignMessage
	marks    map[string]bool
}

func newMemCampaignRepo() *memCampaignRepo {
	return &memCampaignRepo{
		jobs:     map[int]*model.CampaignJob{},
		messages: map[int]*model.CampaignMessage{},
		marks:    map[string]bool{},
	}
}

// WithTx runs fn against the same store; the in-memory mutations are already
// atomic enough for these tests.
func (r *memCampaignRepo) WithTx(fn func(repository.CampaignRepositoryInterface) error) error {
	return fn(r)
}

func (r *memCampaignRepo) CreateJob(job *model.CampaignJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextJob++
	job.ID = r.nextJob
	if job.Status == "" {
		job.Status = model.JobStatusPending
	}
	job.CreatedAt = time.Now()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *memCampaignRepo) GetJob(id int) (*model.CampaignJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, appErrors.NewCampaignJobNotFound(id)
	}
	cp := *j
	return &cp, nil
}

func (r *memCampaignRepo) ListJobs(offset, limit int, tenantID, status string) ([]*model.CampaignJob, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.CampaignJob{}
	for id := r.nextJob; id >= 1; id-- {
		j, ok := r.jobs[id]
		if !ok {
			continue
		}
		if tenantID != "" && j.TenantID != tenantID {
			continue
		}
		if status != "" && string(j.Status) != status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (r *memCampaignRepo) MarkJobProcessing(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok && j.Status == model.JobStatusPending {
		j.Status = model.JobStatusProcessing
	}
	return nil
}

func (r *memCampaignRepo) MarkJobRetrying(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok &&
		(j.Status == model.JobStatusPending || j.Status == model.JobStatusProcessing) {
		j.Status = model.JobStatusRetrying
	}
	return nil
}

func (r *memCampaignRepo) MarkJobFailed(jobID int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok &&
		j.Status != model.JobStatusCompleted && j.Status != model.JobStatusFailed {
		j.Status = model.JobStatusFailed
		j.LastError = lastError
	}
	return nil
}

func (r *memCampaignRepo) CompleteJob(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok &&
		j.Status != model.JobStatusCompleted && j.Status != model.JobStatusFailed {
		j.Status = model.JobStatusCompleted
	}
	return nil
}

func (r *memCampaignRepo) SetJobLastError(jobID int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.LastError = lastError
	}
	return nil
}

func (r *memCampaignRepo) IncrementSent(jobID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[jobID]; ok {
		j.Progress.Sent++
	}
	return nil
}

func (r *memCampaignRepo) IncrementCounter(jobID int, status model.DeliveryStatus) (*model.CampaignProgress, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok {
		return nil, 0, appErrors.NewCampaignJobNotFound(jobID)
	}
	switch status {
	case model.DeliveryStatusDelivered:
		j.Progress.Delivered++
	case model.DeliveryStatusRead:
		j.Progress.Read++
	case model.DeliveryStatusFailed:
		j.Progress.Failed++
	}
	p := j.Progress
	return &p, j.TargetCount, nil
}

func (r *memCampaignRepo) CreateMessage(jobID, contactID int) (*model.CampaignMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.CampaignJobID == jobID && m.ContactID == contactID {
			cp := *m
			return &cp, nil
		}
	}
	r.nextMsg++
	m := &model.CampaignMessage{
		ID:            r.nextMsg,
		CampaignJobID: jobID,
		ContactID:     contactID,
		Status:        model.DeliveryStatusPending,
		CreatedAt:     time.Now(),
	}
	r.messages[m.ID] = m
	cp := *m
	return &cp, nil
}

func (r *memCampaignRepo) GetMessageByID(id int) (*model.CampaignMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (r *memCampaignRepo) ListMessagesByJob(jobID int) ([]*model.CampaignMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.CampaignMessage{}
	for id := 1; id <= r.nextMsg; id++ {
		if m, ok := r.messages[id]; ok && m.CampaignJobID == jobID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memCampaignRepo) FindMessageByExternalID(externalID string) (*model.CampaignMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.messages {
		if m.ExternalMessageID == externalID {
			cp := *m
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memCampaignRepo) UpdateMessageContent(id int, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.RenderedContent = content
	}
	return nil
}

func (r *memCampaignRepo) MarkMessageSent(id int, externalID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.ExternalMessageID != "" {
		return false, nil
	}
	m.ExternalMessageID = externalID
	m.Status = model.DeliveryStatusSent
	m.LastError = ""
	return true, nil
}

func (r *memCampaignRepo) RecordMessageRetry(id int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.LastError = lastError
		m.RetryCount++
	}
	return nil
}

func (r *memCampaignRepo) MarkMessageSendFailed(id int, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Status = model.DeliveryStatusFailed
		m.LastError = lastError
		m.RetryCount++
	}
	return nil
}

func (r *memCampaignRepo) AdvanceMessageStatus(id int, status model.DeliveryStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok && !m.Status.Terminal() {
		m.Status = status
	}
	return nil
}

func (r *memCampaignRepo) ClaimMessageCounted(id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok || m.Counted {
		return false, nil
	}
	m.Counted = true
	return true, nil
}

func (r *memCampaignRepo) InsertStatusMark(externalMessageID string, status model.DeliveryStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := externalMessageID + "|" + string(status)
	if r.marks[key] {
		return false, nil
	}
	r.marks[key] = true
	return true, nil
}

var _ repository.CampaignRepositoryInterface = (*memCampaignRepo)(nil)

// ---------------- bindings, queue, sender ----------------

type memBindingRepo struct {
	bindings map[string]*model.ChannelBinding
}

func (r *memBindingRepo) FindByChannelID(channelID string) (*model.ChannelBinding, error) {
	return r.bindings[channelID], nil
}

func (r *memBindingRepo) FindFirstByTenant(tenantID string) (*model.ChannelBinding, error) {
	for _, b := range r.bindings {
		if b.TenantID == tenantID {
			return b, nil
		}
	}
	return nil, nil
}

var _ repository.BindingRepositoryInterface = (*memBindingRepo)(nil)

type published struct {
	Topic   string
	Payload any
}

type memQueue struct {
	mu   sync.Mutex
	jobs []published
}

func (q *memQueue) Publish(topic string, payload any) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, published{Topic: topic, Payload: payload})
	return nil
}

func (q *memQueue) Close() error { return nil }

var _ queue.Queue = (*memQueue)(nil)

type stubSender struct {
	mu    sync.Mutex
	calls int
	id    string
	err   error
}

func (s *stubSender) SendText(channelID, to, body string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.id, nil
}
