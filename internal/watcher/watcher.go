// Package watcher schedules channel polling: it keeps one worker goroutine
// per registered channel, dispatches a scrape job whenever a channel is due,
// and recreates workers that crashed.
package watcher

import (
	"context"
	"log/slog"
	"time"

	"tgwatch/internal/model"
	"tgwatch/internal/storage"
)

// Fetcher retrieves the posts currently visible on a channel's page.
type Fetcher interface {
	Fetch(ctx context.Context, username string) ([]model.Post, error)
}

// Ingestor processes a scraped batch for one channel.
type Ingestor interface {
	Ingest(ctx context.Context, ch model.Channel, posts []model.Post) (persisted, alerted int, err error)
}

// worker is the execution unit for a single channel. Its jobs queue has
// capacity one, so at most one fetch can be outstanding per channel and a
// slow fetch delays, rather than duplicates, the next dispatch.
type worker struct {
	jobs    chan model.Channel
	stopped chan struct{}
}

// Watcher runs the polling loop. The workers table is touched only from the
// Run goroutine, so it needs no lock.
type Watcher struct {
	store    storage.Storage
	fetcher  Fetcher
	ingestor Ingestor
	log      *slog.Logger
	tick     time.Duration
	workers  map[int64]*worker
}

// New creates a Watcher with the default 1-second tick.
func New(store storage.Storage, fetcher Fetcher, ingestor Ingestor, log *slog.Logger) *Watcher {
	return &Watcher{
		store:    store,
		fetcher:  fetcher,
		ingestor: ingestor,
		log:      log,
		tick:     1 * time.Second,
		workers:  make(map[int64]*worker),
	}
}

// SetTickInterval overrides the default tick (useful for testing).
func (w *Watcher) SetTickInterval(d time.Duration) {
	w.tick = d
}

// Run starts the polling loop, blocking until ctx is cancelled. One cycle
// runs synchronously before the first tick so a cold start misses nothing.
func (w *Watcher) Run(ctx context.Context) {
	w.cycle(ctx)

	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// cycle performs one scheduling pass: retire dead workers, spawn missing
// ones, dispatch jobs for due channels, and batch the last-poll updates
// into a single write.
func (w *Watcher) cycle(ctx context.Context) {
	channels, err := w.store.ListChannels(ctx)
	if err != nil {
		w.log.Error("list channels", "error", err)
		return
	}

	w.ensureWorkers(ctx, channels)

	now := time.Now().UTC()
	var dispatched []int64
	for _, ch := range channels {
		if ctx.Err() != nil {
			return
		}
		if !ch.Due(now) {
			continue
		}
		wk, ok := w.workers[ch.ID]
		if !ok {
			continue
		}
		select {
		case wk.jobs <- ch:
			dispatched = append(dispatched, ch.ID)
		default:
			// Previous fetch still outstanding; the channel stays due
			// and is retried next tick.
		}
	}

	if len(dispatched) == 0 {
		return
	}
	if err := w.store.TouchChannels(ctx, dispatched, now); err != nil {
		w.log.Error("touch channels", "count", len(dispatched), "error", err)
	}
}

// ensureWorkers reconciles the worker table with the channel registry:
// crashed workers are retired, workers for removed channels are shut down,
// and every registered channel gets a live worker.
func (w *Watcher) ensureWorkers(ctx context.Context, channels []model.Channel) {
	registered := make(map[int64]struct{}, len(channels))
	for _, ch := range channels {
		registered[ch.ID] = struct{}{}
	}

	for id, wk := range w.workers {
		if _, ok := registered[id]; !ok {
			close(wk.jobs)
			delete(w.workers, id)
			continue
		}
		select {
		case <-wk.stopped:
			w.log.Warn("retiring crashed worker", "channel_id", id)
			delete(w.workers, id)
		default:
		}
	}

	for _, ch := range channels {
		if _, ok := w.workers[ch.ID]; ok {
			continue
		}
		wk := &worker{
			jobs:    make(chan model.Channel, 1),
			stopped: make(chan struct{}),
		}
		w.workers[ch.ID] = wk
		go w.runWorker(ctx, wk)
	}
}

// runWorker executes scrape jobs for one channel. A panic inside a job is
// contained here: the worker logs it and exits, and the next ensure pass
// replaces it.
func (w *Watcher) runWorker(ctx context.Context, wk *worker) {
	defer close(wk.stopped)
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("worker crashed", "panic", r)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-wk.jobs:
			if !ok {
				return
			}
			w.poll(ctx, ch)
		}
	}
}

// poll fetches a channel's page and hands the result to the ingestor. Fetch,
// parse, and persistence failures degrade to a log line; the channel is
// retried when it next comes due.
func (w *Watcher) poll(ctx context.Context, ch model.Channel) {
	w.log.Debug("polling channel", "channel_id", ch.ID, "username", ch.Username)

	posts, err := w.fetcher.Fetch(ctx, ch.Username)
	if err != nil {
		w.log.Error("fetch channel", "channel_id", ch.ID, "username", ch.Username, "error", err)
		return
	}

	persisted, alerted, err := w.ingestor.Ingest(ctx, ch, posts)
	if err != nil {
		w.log.Error("ingest batch", "channel_id", ch.ID, "error", err)
		return
	}
	if persisted > 0 {
		w.log.Info("ingested new posts",
			"channel_id", ch.ID, "username", ch.Username, "persisted", persisted, "alerted", alerted)
	}
}
