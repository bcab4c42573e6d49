package ingest

import (
	"log/slog"
	"time"

	"github.com/unclebandit/waleopard-backend/internal/metrics"
	"github.com/unclebandit/waleopard-backend/internal/repository"
)

// Backfill replays inbound events that were durably recorded but whose
// contact mutation never landed (a crash or storage fault after the 200 went
// out). It runs as a single flight, so replays never race each other; the
// only concurrent writer is a live duplicate delivery, which the raw-event
// insert already filters out.
type Backfill struct {
	Events     repository.EventRepositoryInterface
	Reconciler *Reconciler
	Logger     *slog.Logger

	Interval  time.Duration
	MinAge    time.Duration
	BatchSize int
}

// Run loops until stop closes. MinAge keeps the backfill from touching
// events the ingest pool is still working on.
func (b *Backfill) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if n, err := b.RunOnce(); err != nil {
				b.Logger.Error("backfill pass failed", "error", err)
			} else if n > 0 {
				b.Logger.Info("backfill pass replayed events", "count", n)
			}
		}
	}
}

// RunOnce replays one batch and returns how many events were recovered.
func (b *Backfill) RunOnce() (int, error) {
	batch := b.BatchSize
	if batch < 1 {
		batch = 100
	}

	events, err := b.Events.ListUnprocessed(time.Now().Add(-b.MinAge), batch)
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, ev := range events {
		if err := b.Reconciler.Replay(ev); err != nil {
			// Leave it unprocessed; the next pass tries again.
			b.Logger.Warn("backfill replay failed", "message_id", ev.MessageID, "error", err)
			continue
		}
		replayed++
		metrics.BackfillReplayed.Inc()
	}
	return replayed, nil
}
