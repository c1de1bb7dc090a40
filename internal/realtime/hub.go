// Package realtime distributes change notifications over Redis pub/sub so
// every API instance can tell connected clients to refetch.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	TopicProposals = "proposals"
	TopicExecution = "execution_status"
)

// Event names a change without carrying the changed data. Subscribers are
// expected to refetch; the payload identifies what went stale.
type Event struct {
	Topic      string    `json:"topic"`
	Kind       string    `json:"kind"`
	EntityID   string    `json:"entity_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Hub publishes and fans out change events. Each Subscribe call gets its own
// buffered channel; a subscriber that stops draining loses events rather than
// blocking the rest.
type Hub struct {
	client *redis.Client
	logger *zap.Logger

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]chan Event

	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(client *redis.Client, logger *zap.Logger) *Hub {
	return &Hub{
		client: client,
		logger: logger,
		subs:   make(map[string]map[int]chan Event),
	}
}

func channelName(topic string) string {
	return "participa:changes:" + topic
}

// Start begins relaying Redis messages to local subscribers. It returns once
// the subscription is established.
func (h *Hub) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	h.cancel = cancel
	h.done = make(chan struct{})

	pubsub := h.client.Subscribe(runCtx, channelName(TopicProposals), channelName(TopicExecution))
	if _, err := pubsub.Receive(runCtx); err != nil {
		cancel()
		close(h.done)
		return fmt.Errorf("subscribe changes: %w", err)
	}

	go func() {
		defer close(h.done)
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					h.logger.Warn("drop malformed change event", zap.Error(err))
					continue
				}
				h.fanOut(event)
			}
		}
	}()
	return nil
}

// Stop tears down the relay. Safe to call once after a successful Start.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
		<-h.done
	}
}

// Publish announces a change on a topic. Errors are logged, not returned;
// a missed notification degrades freshness, nothing else.
func (h *Hub) Publish(ctx context.Context, topic, kind, entityID string) {
	event := Event{
		Topic:      topic,
		Kind:       kind,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("marshal change event", zap.Error(err))
		return
	}
	if err := h.client.Publish(ctx, channelName(topic), payload).Err(); err != nil {
		h.logger.Warn("publish change event",
			zap.String("topic", topic),
			zap.Error(err))
	}
}

// Subscription is one listener's handle on a topic.
type Subscription struct {
	C           <-chan Event
	unsubscribe func()
}

func (s *Subscription) Unsubscribe() {
	s.unsubscribe()
}

// Subscribe registers a listener for one topic. The returned channel is
// closed on Unsubscribe.
func (h *Hub) Subscribe(topic string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Event, 16)

	if h.subs[topic] == nil {
		h.subs[topic] = make(map[int]chan Event)
	}
	h.subs[topic][id] = ch

	return &Subscription{
		C: ch,
		unsubscribe: func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if existing, ok := h.subs[topic][id]; ok {
				delete(h.subs[topic], id)
				close(existing)
			}
		},
	}
}

func (h *Hub) fanOut(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[event.Topic] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("drop change event for slow subscriber",
				zap.String("topic", event.Topic))
		}
	}
}
