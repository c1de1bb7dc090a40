package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupHub(t *testing.T) *Hub {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hub := NewHub(client, zap.NewNop())
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(hub.Stop)
	return hub
}

func waitForEvent(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event := <-sub.C:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
		return Event{}
	}
}

func TestPublishReachesSubscriber(t *testing.T) {
	hub := setupHub(t)

	sub := hub.Subscribe(TopicProposals)
	defer sub.Unsubscribe()

	hub.Publish(context.Background(), TopicProposals, "created", "prp_1")

	event := waitForEvent(t, sub)
	if event.Kind != "created" || event.EntityID != "prp_1" {
		t.Fatalf("unexpected event: %+v", event)
	}
}

func TestTopicsAreIsolated(t *testing.T) {
	hub := setupHub(t)

	proposals := hub.Subscribe(TopicProposals)
	defer proposals.Unsubscribe()
	execution := hub.Subscribe(TopicExecution)
	defer execution.Unsubscribe()

	hub.Publish(context.Background(), TopicExecution, "updated", "prp_2")

	event := waitForEvent(t, execution)
	if event.Topic != TopicExecution {
		t.Fatalf("unexpected topic: %s", event.Topic)
	}

	select {
	case stray := <-proposals.C:
		t.Fatalf("proposals subscriber received execution event: %+v", stray)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	hub := setupHub(t)

	sub := hub.Subscribe(TopicProposals)
	sub.Unsubscribe()

	if _, open := <-sub.C; open {
		t.Fatal("channel must be closed after Unsubscribe")
	}

	// A second Unsubscribe must not panic.
	sub.Unsubscribe()
}

func TestMultipleSubscribersFanOut(t *testing.T) {
	hub := setupHub(t)

	first := hub.Subscribe(TopicProposals)
	defer first.Unsubscribe()
	second := hub.Subscribe(TopicProposals)
	defer second.Unsubscribe()

	hub.Publish(context.Background(), TopicProposals, "status_changed", "prp_3")

	for _, sub := range []*Subscription{first, second} {
		event := waitForEvent(t, sub)
		if event.EntityID != "prp_3" {
			t.Fatalf("unexpected event: %+v", event)
		}
	}
}
