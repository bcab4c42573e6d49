package ingest

import (
	"io"
	"log/slog"
	"sync"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/model"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ---------------- event store ----------------

type memEventRepo struct {
	mu        sync.Mutex
	events    map[string]*model.InboundEvent
	processed map[string]time.Time
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: map[string]*model.InboundEvent{}, processed: map[string]time.Time{}}
}

func (r *memEventRepo) Insert(ev *model.InboundEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[ev.MessageID]; ok {
		return false, nil
	}
	cp := *ev
	r.events[ev.MessageID] = &cp
	return true, nil
}

func (r *memEventRepo) MarkProcessed(messageID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processed[messageID] = at
	return nil
}

func (r *memEventRepo) ListUnprocessed(olderThan time.Time, limit int) ([]*model.InboundEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []*model.InboundEvent{}
	for id, ev := range r.events {
		if _, done := r.processed[id]; done {
			continue
		}
		if !ev.ReceivedAt.Before(olderThan) {
			continue
		}
		cp := *ev
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

var _ repository.EventRepositoryInterface = (*memEventRepo)(nil)

// ---------------- contact store ----------------

type memContactRepo struct {
	mu      sync.Mutex
	nextID  int
	records map[int]*model.Contact
	notes   map[int][]model.ContactNote
	noteIDs map[string]bool
}

func newMemContactRepo() *memContactRepo {
	return &memContactRepo{
		records: map[int]*model.Contact{},
		notes:   map[int][]model.ContactNote{},
		noteIDs: map[string]bool{},
	}
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
	for _, c := range r.records {
		if c.TenantID == tenantID && c.ChannelAddress == addr {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memContactRepo) FindByEmail(tenantID, email string) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
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

// memCampaignRepo mirrors the SQL guards (conditional updates, create-if-
// absent marks, the counted claim) under a mutex, so the concurrency tests
// exercise the same decision surface as the Postgres implementation.
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

type campaignSnapshot struct {
	jobs     map[int]*model.CampaignJob
	messages map[int]*model.CampaignMessage
	marks    map[string]bool
}

func (r *memCampaignRepo) snapshot() campaignSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := campaignSnapshot{
		jobs:     make(map[int]*model.CampaignJob, len(r.jobs)),
		messages: make(map[int]*model.CampaignMessage, len(r.messages)),
		marks:    make(map[string]bool, len(r.marks)),
	}
	for id, j := range r.jobs {
		cp := *j
		s.jobs[id] = &cp
	}
	for id, m := range r.messages {
		cp := *m
		s.messages[id] = &cp
	}
	for k, v := range r.marks {
		s.marks[k] = v
	}
	return s
}

func (r *memCampaignRepo) restore(s campaignSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = s.jobs
	r.messages = s.messages
	r.marks = s.marks
}

// WithTx mimics the rollback contract: an error from fn puts the store back
// the way it was.
func (r *memCampaignRepo) WithTx(fn func(repository.CampaignRepositoryInterface) error) error {
	snap := r.snapshot()
	if err := fn(r); err != nil {
		r.restore(snap)
		return err
	}
	return nil
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
	for _, j := range r.jobs {
		if tenantID != "" && j.TenantID != tenantID {
			continue
		}
		if status != "" && string(j.Status) != status {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	return out, len(out), nil
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
