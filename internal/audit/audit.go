// Package audit records access decisions and sensitive-route visits without
// ever blocking the request path.
package audit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"participa/api/internal/store"
)

const (
	KindRouteAccess = "route_access"
	KindAuth        = "auth"
	KindAdminAction = "admin_action"
)

type inserter interface {
	InsertAuditEvent(ctx context.Context, event store.AuditEvent) error
}

// Recorder buffers events through a channel drained by one writer goroutine.
// When the buffer is full the event is dropped with a warning; auditing must
// never slow a request down.
type Recorder struct {
	events chan store.AuditEvent
	db     inserter
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	done      chan struct{}
}

func NewRecorder(db inserter, logger *zap.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 256
	}
	r := &Recorder{
		events: make(chan store.AuditEvent, buffer),
		db:     db,
		logger: logger,
		done:   make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer close(r.done)
	for event := range r.events {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.db.InsertAuditEvent(ctx, event); err != nil {
			r.logger.Warn("audit insert failed",
				zap.String("kind", event.Kind),
				zap.Error(err))
		}
		cancel()
	}
}

// Record enqueues an event. It never blocks, and it is safe to call
// concurrently with Close; events arriving after Close are dropped.
func (r *Recorder) Record(event store.AuditEvent) {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.logger.Warn("audit recorder closed, dropping event",
			zap.String("kind", event.Kind),
			zap.String("actor_id", event.ActorID))
		return
	}
	select {
	case r.events <- event:
	default:
		r.logger.Warn("audit buffer full, dropping event",
			zap.String("kind", event.Kind),
			zap.String("actor_id", event.ActorID))
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (r *Recorder) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		close(r.events)
		<-r.done
	})
}
