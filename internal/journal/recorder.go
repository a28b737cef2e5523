package journal

import (
	"context"
	"sync"
	"time"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
)

const (
	recorderBufferSize  = 128
	defaultWriteTimeout = 5 * time.Second
)

// Recorder is an mqtt.Observer that persists every session event.
//
// OnEvent never blocks: events are queued and written by a single background
// goroutine. When the queue is full the event is dropped and a warning logged.
// Storage errors are logged and never reach the session.
type Recorder struct {
	repo         Repository
	logger       mqtt.Logger
	writeTimeout time.Duration

	mu     sync.RWMutex
	closed bool
	queue  chan Entry
	done   chan struct{}
}

// NewRecorder starts a recorder writing to repo. Close must be called to
// flush queued events.
func NewRecorder(repo Repository, logger mqtt.Logger) *Recorder {
	r := &Recorder{
		repo:         repo,
		logger:       logger,
		writeTimeout: defaultWriteTimeout,
		queue:        make(chan Entry, recorderBufferSize),
		done:         make(chan struct{}),
	}
	go r.run()
	return r
}

// OnEvent queues ev for persistence.
func (r *Recorder) OnEvent(ev mqtt.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return
	}

	select {
	case r.queue <- EntryFromEvent(ev):
	default:
		r.logger.Warn("session journal queue full, event dropped",
			"kind", string(ev.Kind),
			"event_id", ev.ID,
		)
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	for entry := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
		if err := r.repo.Create(ctx, &entry); err != nil {
			r.logger.Warn("failed to journal session event",
				"kind", string(entry.Kind),
				"event_id", entry.ID,
				"error", err,
			)
		}
		cancel()
	}
}
