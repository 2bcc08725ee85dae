package watcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tgwatch/internal/model"
	"tgwatch/internal/storage"
)

// stubFetcher serves canned results per username and records calls.
type stubFetcher struct {
	mu      sync.Mutex
	calls   map[string]int
	posts   map[string][]model.Post
	errs    map[string]error
	panics  map[string]bool
	blocked map[string]chan struct{}
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		calls:   make(map[string]int),
		posts:   make(map[string][]model.Post),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		blocked: make(map[string]chan struct{}),
	}
}

func (f *stubFetcher) Fetch(_ context.Context, username string) ([]model.Post, error) {
	f.mu.Lock()
	f.calls[username]++
	gate := f.blocked[username]
	shouldPanic := f.panics[username]
	if shouldPanic {
		f.panics[username] = false
	}
	err := f.errs[username]
	posts := f.posts[username]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if shouldPanic {
		panic("scrape exploded")
	}
	if err != nil {
		return nil, err
	}
	return posts, nil
}

func (f *stubFetcher) callCount(username string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[username]
}

// stubIngestor records ingested batches.
type stubIngestor struct {
	mu      sync.Mutex
	batches map[int64][][]model.Post
}

func newStubIngestor() *stubIngestor {
	return &stubIngestor{batches: make(map[int64][][]model.Post)}
}

func (i *stubIngestor) Ingest(_ context.Context, ch model.Channel, posts []model.Post) (int, int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.batches[ch.ID] = append(i.batches[ch.ID], posts)
	return len(posts), 0, nil
}

func (i *stubIngestor) batchCount(channelID int64) int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.batches[channelID])
}

func newTestStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestWatcher(t *testing.T, store *storage.SQLite, f *stubFetcher, ing *stubIngestor) *Watcher {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, f, ing, log)
}

func createChannel(t *testing.T, store *storage.SQLite, username string, intervalSeconds int, lastPolled *time.Time) model.Channel {
	t.Helper()
	ctx := context.Background()
	ch := model.Channel{Username: username, Title: "@" + username, IntervalSeconds: intervalSeconds}
	if err := store.CreateChannel(ctx, &ch); err != nil {
		t.Fatalf("create channel: %v", err)
	}
	if lastPolled != nil {
		ch.LastPolledAt = lastPolled
		if err := store.UpdateChannel(ctx, &ch); err != nil {
			t.Fatalf("update channel: %v", err)
		}
	}
	return ch
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestChannelDue(t *testing.T) {
	now := time.Now().UTC()
	recent := now.Add(-500 * time.Millisecond)
	stale := now.Add(-2500 * time.Millisecond)

	tests := []struct {
		name string
		ch   model.Channel
		want bool
	}{
		{
			name: "never polled is due",
			ch:   model.Channel{IntervalSeconds: 2},
			want: true,
		},
		{
			name: "polled 500ms ago with 2s interval is not due",
			ch:   model.Channel{IntervalSeconds: 2, LastPolledAt: &recent},
			want: false,
		},
		{
			name: "polled 2500ms ago with 2s interval is due",
			ch:   model.Channel{IntervalSeconds: 2, LastPolledAt: &stale},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.ch.Due(now)); diff != "" {
				t.Errorf("due mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCycleDispatchesDueChannels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	recent := time.Now().UTC().Add(-500 * time.Millisecond)
	stale := time.Now().UTC().Add(-2500 * time.Millisecond)
	fresh := createChannel(t, store, "freshchan", 2, &recent)
	due := createChannel(t, store, "stalechan", 2, &stale)

	fetcher := newStubFetcher()
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)

	w.cycle(ctx)
	waitFor(t, func() bool { return fetcher.callCount("stalechan") == 1 })

	if got := fetcher.callCount("freshchan"); got != 0 {
		t.Errorf("fresh channel fetched %d times, want 0", got)
	}

	updated, err := store.GetChannel(ctx, due.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if updated.LastPolledAt == nil || !updated.LastPolledAt.After(stale) {
		t.Errorf("due channel last poll not advanced: %v", updated.LastPolledAt)
	}

	notUpdated, err := store.GetChannel(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get channel: %v", err)
	}
	if notUpdated.LastPolledAt == nil || notUpdated.LastPolledAt.After(recent.Add(time.Second)) {
		t.Errorf("fresh channel last poll moved unexpectedly: %v", notUpdated.LastPolledAt)
	}
}

func TestFetchFailureDoesNotBlockOtherChannels(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	createChannel(t, store, "brokenchan", 0, nil)
	b := createChannel(t, store, "healthychan", 0, nil)

	fetcher := newStubFetcher()
	fetcher.blocked["brokenchan"] = make(chan struct{})
	fetcher.errs["brokenchan"] = fmt.Errorf("connection refused")
	fetcher.posts["healthychan"] = []model.Post{{MessageID: 1, Text: "hi", PostedAt: time.Now()}}

	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)

	// A's fetch hangs on the gate; B must still be dispatched and ingested
	// in the same cycle.
	w.cycle(ctx)
	waitFor(t, func() bool { return ing.batchCount(b.ID) == 1 })

	close(fetcher.blocked["brokenchan"])
}

func TestCrashedWorkerIsRecreated(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ch := createChannel(t, store, "panicchan", 0, nil)

	fetcher := newStubFetcher()
	fetcher.panics["panicchan"] = true
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)

	w.cycle(ctx)
	waitFor(t, func() bool { return fetcher.callCount("panicchan") == 1 })
	// Give the crashed worker time to finish unwinding.
	waitFor(t, func() bool {
		wk, ok := w.workers[ch.ID]
		if !ok {
			return true
		}
		select {
		case <-wk.stopped:
			return true
		default:
			return false
		}
	})

	// Next cycle retires the dead worker, spawns a fresh one, and polls again.
	w.cycle(ctx)
	waitFor(t, func() bool { return fetcher.callCount("panicchan") == 2 })
	waitFor(t, func() bool { return ing.batchCount(ch.ID) == 1 })
}

func TestSlowFetchDelaysNextDispatch(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	createChannel(t, store, "slowchan", 0, nil)

	fetcher := newStubFetcher()
	gate := make(chan struct{})
	fetcher.blocked["slowchan"] = gate
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)

	w.cycle(ctx)
	waitFor(t, func() bool { return fetcher.callCount("slowchan") == 1 })

	// While the first fetch hangs, one follow-up job queues and later
	// cycles skip the channel instead of stacking more work.
	w.cycle(ctx)
	w.cycle(ctx)
	w.cycle(ctx)
	if got := fetcher.callCount("slowchan"); got != 1 {
		t.Fatalf("fetch started %d times while blocked, want 1", got)
	}

	close(gate)
	waitFor(t, func() bool { return fetcher.callCount("slowchan") == 2 })

	time.Sleep(50 * time.Millisecond)
	if got := fetcher.callCount("slowchan"); got != 2 {
		t.Errorf("fetch count = %d after drain, want 2", got)
	}
}

func TestRemovedChannelWorkerShutsDown(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ch := createChannel(t, store, "gonechan", 3600, nil)

	fetcher := newStubFetcher()
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)

	w.cycle(ctx)
	waitFor(t, func() bool { return fetcher.callCount("gonechan") == 1 })

	if err := store.DeleteChannel(ctx, ch.ID); err != nil {
		t.Fatalf("delete channel: %v", err)
	}

	w.cycle(ctx)
	if _, ok := w.workers[ch.ID]; ok {
		t.Error("worker for removed channel still registered")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := newTestStore(t)
	fetcher := newStubFetcher()
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)
	w.SetTickInterval(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRunPerformsColdStartCycle(t *testing.T) {
	store := newTestStore(t)
	createChannel(t, store, "coldchan", 3600, nil)

	fetcher := newStubFetcher()
	ing := newStubIngestor()
	w := newTestWatcher(t, store, fetcher, ing)
	// Tick far beyond the test window; only the synchronous start cycle
	// can trigger the fetch.
	w.SetTickInterval(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	waitFor(t, func() bool { return fetcher.callCount("coldchan") == 1 })
	cancel()
}
