// Package recorder persists authoritative usage events after the response
// has been delivered. Recording is decoupled from the request path through a
// buffered channel: Enqueue never blocks and never fails the caller, and a
// recording failure is never observable to the client.
package recorder

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chatapi/internal/model"
	"chatapi/internal/pubsub"
	"chatapi/internal/repository"

	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// Recorder drains queued usage events into the usage ledger. Events that
// cannot be committed are logged and dropped: there is no natural retry
// boundary once the response has been sent.
type Recorder struct {
	events    chan model.UsageEvent
	repo      repository.UsageRepository
	publisher pubsub.Publisher // optional analytics export
	topic     string
	workers   int
	logger    zerolog.Logger
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a Recorder with the given queue capacity and worker count.
// publisher may be nil to disable the analytics export.
func New(repo repository.UsageRepository, queueSize, workers int, publisher pubsub.Publisher, topic string, logger zerolog.Logger) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if workers <= 0 {
		workers = 1
	}
	return &Recorder{
		events:    make(chan model.UsageEvent, queueSize),
		repo:      repo,
		publisher: publisher,
		topic:     topic,
		workers:   workers,
		logger:    logger.With().Str("component", "UsageRecorder").Logger(),
	}
}

// Start launches the worker goroutines. Workers run until Close is called
// and the queue is drained.
func (r *Recorder) Start() {
	for i := 0; i < r.workers; i++ {
		r.wg.Add(1)
		go r.run()
	}
}

// Enqueue hands an event to the recorder without blocking. When the queue is
// full the event is dropped and logged; the caller's response is already on
// the wire and must not wait.
func (r *Recorder) Enqueue(ev model.UsageEvent) {
	select {
	case r.events <- ev:
	default:
		r.logger.Error().
			Str("user_id", ev.UserID).
			Str("model_id", ev.ModelID).
			Int64("total_tokens", ev.TotalTokens).
			Msg("Recorder queue full, dropping usage event")
	}
}

// Close stops accepting events and waits for the workers to drain the queue.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		close(r.events)
	})
	r.wg.Wait()
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for ev := range r.events {
		r.record(ev)
	}
}

func (r *Recorder) record(ev model.UsageEvent) {
	// Detached from any request, so the write gets its own deadline.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := r.repo.InsertEvent(ctx, &ev); err != nil {
		r.logger.Error().Err(err).
			Str("user_id", ev.UserID).
			Str("model_id", ev.ModelID).
			Int64("total_tokens", ev.TotalTokens).
			Msg("Failed to record usage event, dropping")
		return
	}
	r.logger.Debug().
		Str("user_id", ev.UserID).
		Str("model_tier", string(ev.ModelTier)).
		Int64("total_tokens", ev.TotalTokens).
		Msg("Usage event recorded")

	if r.publisher == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		r.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to encode usage event for export")
		return
	}
	if _, err := r.publisher.Publish(ctx, r.topic, payload); err != nil {
		r.logger.Error().Err(err).Int64("event_id", ev.ID).Msg("Failed to export usage event")
	}
}
