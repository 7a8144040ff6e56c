package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"chatapi/internal/model"
	"chatapi/internal/quota"

	"github.com/rs/zerolog"
)

type fakeUsageRepo struct {
	mu       sync.Mutex
	inserted []model.UsageEvent
	err      error
}

func (f *fakeUsageRepo) InsertEvent(ctx context.Context, ev *model.UsageEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, *ev)
	return nil
}

func (f *fakeUsageRepo) AggregateDaily(ctx context.Context, userID string, day time.Time) (*model.DailyTierUsage, error) {
	return &model.DailyTierUsage{Date: day, Tiers: map[quota.Tier]model.TierTotals{}}, nil
}

func (f *fakeUsageRepo) events() []model.UsageEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.UsageEvent, len(f.inserted))
	copy(out, f.inserted)
	return out
}

type fakePublisher struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, data)
	return "msg-1", nil
}

func (f *fakePublisher) Close() error { return nil }

func (f *fakePublisher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func testEvent(userID string, tokens int64) model.UsageEvent {
	return model.UsageEvent{
		UserID:      userID,
		ModelID:     "gpt-4o",
		ModelTier:   quota.TierPremium,
		TotalTokens: tokens,
	}
}

func TestRecorderPersistsEnqueuedEvents(t *testing.T) {
	repo := &fakeUsageRepo{}
	rec := New(repo, 16, 2, nil, "", zerolog.Nop())
	rec.Start()

	rec.Enqueue(testEvent("user-1", 100))
	rec.Enqueue(testEvent("user-2", 200))
	rec.Close()

	got := repo.events()
	if len(got) != 2 {
		t.Fatalf("inserted %d events, want 2", len(got))
	}
	total := got[0].TotalTokens + got[1].TotalTokens
	if total != 300 {
		t.Errorf("total tokens = %d, want 300", total)
	}
}

func TestRecorderDropsOnInsertFailure(t *testing.T) {
	repo := &fakeUsageRepo{err: errors.New("connection refused")}
	rec := New(repo, 16, 1, nil, "", zerolog.Nop())
	rec.Start()

	rec.Enqueue(testEvent("user-1", 100))
	rec.Close()

	// The failure is logged and swallowed; nothing is persisted and nothing
	// panics or retries forever.
	if got := repo.events(); len(got) != 0 {
		t.Fatalf("inserted %d events, want 0", len(got))
	}
}

func TestRecorderEnqueueNeverBlocksWhenFull(t *testing.T) {
	repo := &fakeUsageRepo{}
	// No Start: the queue of one fills and stays full.
	rec := New(repo, 1, 1, nil, "", zerolog.Nop())

	done := make(chan struct{})
	go func() {
		rec.Enqueue(testEvent("user-1", 1))
		rec.Enqueue(testEvent("user-1", 2))
		rec.Enqueue(testEvent("user-1", 3))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestRecorderPublishesAfterInsert(t *testing.T) {
	repo := &fakeUsageRepo{}
	pub := &fakePublisher{}
	rec := New(repo, 16, 1, pub, "usage-events", zerolog.Nop())
	rec.Start()

	rec.Enqueue(testEvent("user-1", 100))
	rec.Close()

	if len(repo.events()) != 1 {
		t.Fatalf("inserted %d events, want 1", len(repo.events()))
	}
	if pub.count() != 1 {
		t.Fatalf("published %d events, want 1", pub.count())
	}
}

func TestRecorderSkipsPublishWhenInsertFails(t *testing.T) {
	repo := &fakeUsageRepo{err: errors.New("connection refused")}
	pub := &fakePublisher{}
	rec := New(repo, 16, 1, pub, "usage-events", zerolog.Nop())
	rec.Start()

	rec.Enqueue(testEvent("user-1", 100))
	rec.Close()

	if pub.count() != 0 {
		t.Fatalf("published %d events for a failed insert, want 0", pub.count())
	}
}

func TestRecorderCloseIsIdempotent(t *testing.T) {
	rec := New(&fakeUsageRepo{}, 16, 1, nil, "", zerolog.Nop())
	rec.Start()
	rec.Close()
	rec.Close()
}
