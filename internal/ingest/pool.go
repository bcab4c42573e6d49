package ingest

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	appErrors "github.com/unclebandit/waleopard-backend/internal/errors"
	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/model"
)

// Task is one classified, tenant-resolved webhook event awaiting
// asynchronous processing. Exactly one of Inbound/Status is set.
type Task struct {
	Binding model.ChannelBinding
	Inbound *model.InboundEvent
	Status  *model.DeliveryStatusEvent
}

func (t Task) kind() string {
	if t.Inbound != nil {
		return "inbound_message"
	}
	return "status_update"
}

// Pool is the bounded worker pool behind the webhook endpoint. The HTTP
// handler's only job is enqueue-and-acknowledge; everything slow happens on
// these workers, after the provider already got its 200. That asynchrony is
// the eventual-consistency boundary the dashboard polls across.
type Pool struct {
	Reconciler *Reconciler
	Aggregator *Aggregator
	Logger     *slog.Logger

	tasks       chan Task
	workers     int
	enqueueWait time.Duration
	wg          sync.WaitGroup
}

func NewPool(workers, queueSize int, rec *Reconciler, agg *Aggregator, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		Reconciler:  rec,
		Aggregator:  agg,
		Logger:      logger,
		tasks:       make(chan Task, queueSize),
		workers:     workers,
		enqueueWait: 2 * time.Second,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
}

// Stop drains the queue and waits for in-flight tasks.
func (p *Pool) Stop() {
	close(p.tasks)
	p.wg.Wait()
}

// Enqueue hands a task to the pool. When the queue is full it applies brief
// backpressure, then drops: the idempotency keys make the event safe to
// recover out of band, and stalling the webhook response would only invite a
// provider retry storm.
func (p *Pool) Enqueue(t Task) bool {
	select {
	case p.tasks <- t:
		metrics.QueueDepth.Inc()
		metrics.EventsEnqueued.WithLabelValues(t.kind()).Inc()
		return true
	default:
	}

	timer := time.NewTimer(p.enqueueWait)
	defer timer.Stop()
	select {
	case p.tasks <- t:
		metrics.QueueDepth.Inc()
		metrics.EventsEnqueued.WithLabelValues(t.kind()).Inc()
		return true
	case <-timer.C:
		metrics.EventsDropped.Inc()
		p.Logger.Error("ingest queue full, dropping event", "kind", t.kind())
		return false
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for t := range p.tasks {
		metrics.QueueDepth.Dec()
		p.handle(t)
	}
}

func (p *Pool) handle(t Task) {
	kind := t.kind()
	start := time.Now()

	var err error
	switch {
	case t.Inbound != nil:
		err = p.Reconciler.Process(t.Inbound)
		switch {
		case err == nil:
			metrics.EventsProcessed.WithLabelValues(kind, "applied").Inc()
		case errors.Is(err, appErrors.ErrDuplicateEvent):
			metrics.EventsProcessed.WithLabelValues(kind, "duplicate").Inc()
			err = nil
		}
	case t.Status != nil:
		var outcome Outcome
		outcome, err = p.Aggregator.Process(t.Status)
		if err == nil {
			metrics.EventsProcessed.WithLabelValues(kind, string(outcome)).Inc()
		}
	default:
		p.Logger.Warn("task with no payload discarded")
		return
	}

	metrics.ProcessingDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		// The provider was already told 200; recovery is the backfill
		// reconciler's job (inbound) or the next provider redelivery
		// (statuses, protected by the marker table).
		metrics.EventsProcessed.WithLabelValues(kind, "error").Inc()
		p.Logger.Error("ingest task failed", "kind", kind, "tenant_id", t.Binding.TenantID, "error", err)
	}
}
