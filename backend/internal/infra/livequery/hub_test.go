package livequery

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestSubscribeCoalescesPendingEvents(t *testing.T) {
	hub := NewHub(nil)
	events, cancel := hub.Subscribe()
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := hub.Publish(ctx, Event{Kind: EventRated, PromptID: "p1"}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	select {
	case ev := <-events:
		if ev.Kind != EventRated || ev.Origin != hub.InstanceID() || ev.At.IsZero() {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatalf("expected a pending event")
	}
	select {
	case ev := <-events:
		t.Fatalf("events should coalesce, got extra %+v", ev)
	default:
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("channel should be closed after cancel")
	}
}

func TestRedisBridgeDeliversRemoteEvents(t *testing.T) {
	server := miniredis.RunT(t)
	newClient := func() *redis.Client {
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return client
	}

	local := NewHub(nil)
	local.AttachRedis(newClient(), "changes")
	remote := NewHub(nil)
	remote.AttachRedis(newClient(), "changes")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- remote.Run(ctx) }()

	events, unsubscribe := remote.Subscribe()
	defer unsubscribe()

	// 等待订阅生效后再发布。
	deadline := time.Now().Add(2 * time.Second)
	for len(server.PubSubChannels("changes")) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("remote hub never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := local.Publish(ctx, Event{Kind: EventCreated, PromptID: "p42"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case ev := <-events:
		if ev.PromptID != "p42" || ev.Origin != local.InstanceID() {
			t.Fatalf("unexpected remote event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("remote event not delivered")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
}
