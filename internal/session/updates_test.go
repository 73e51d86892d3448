package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"barscan/internal/session"
)

type captureSink struct {
	mu      sync.Mutex
	updates []session.Update
}

func (c *captureSink) Deliver(u session.Update) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.updates = append(c.updates, u)
}

func TestUpdateHubFetchSince(t *testing.T) {
	hub := session.NewUpdateHub(3)
	for _, status := range []string{"a", "b", "c", "d"} {
		hub.Publish(session.Update{Kind: session.UpdateState, Status: status})
	}

	updates, next, err := hub.Fetch(context.Background(), 0, 0, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if next != 4 {
		t.Fatalf("cursor = %d, want 4", next)
	}
	if len(updates) != 3 || updates[0].Status != "b" || updates[0].Sequence != 2 {
		t.Fatalf("updates = %+v, want oldest dropped", updates)
	}

	updates, _, _ = hub.Fetch(context.Background(), 3, 0, false)
	if len(updates) != 1 || updates[0].Status != "d" {
		t.Fatalf("updates since 3 = %+v", updates)
	}
	updates, next, _ = hub.Fetch(context.Background(), 1, 1, false)
	if len(updates) != 1 || updates[0].Status != "b" || next != 2 {
		t.Fatalf("limited updates = %+v next=%d", updates, next)
	}
	if updates, _, _ := hub.Fetch(context.Background(), 4, 0, false); len(updates) != 0 {
		t.Fatalf("expected no updates past the cursor, got %+v", updates)
	}
	if hub.Latest() != 4 {
		t.Fatalf("Latest = %d", hub.Latest())
	}
}

func TestUpdateHubWaitWakesOnPublish(t *testing.T) {
	hub := session.NewUpdateHub(8)
	got := make(chan []session.Update, 1)
	go func() {
		updates, _, _ := hub.Fetch(context.Background(), 0, 0, true)
		got <- updates
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(session.Update{Kind: session.UpdateCleared})

	select {
	case updates := <-got:
		if len(updates) != 1 || updates[0].Kind != session.UpdateCleared {
			t.Fatalf("updates = %+v", updates)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("waiting Fetch did not wake")
	}
}

func TestUpdateHubWaitHonoursContext(t *testing.T) {
	hub := session.NewUpdateHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 0, true)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Fetch error = %v, want deadline exceeded", err)
	}
}

func TestUpdateHubSinks(t *testing.T) {
	hub := session.NewUpdateHub(8)
	sink := &captureSink{}
	hub.AddSink(sink)
	hub.AddSink(nil)
	hub.Publish(session.Update{Kind: session.UpdateRemoved, RecordID: "r1"})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.updates) != 1 || sink.updates[0].RecordID != "r1" || sink.updates[0].Sequence != 1 {
		t.Fatalf("sink updates = %+v", sink.updates)
	}
	if sink.updates[0].Timestamp.IsZero() {
		t.Fatal("timestamp not stamped")
	}
}

func TestNilUpdateHubIsSafe(t *testing.T) {
	var hub *session.UpdateHub
	hub.Publish(session.Update{})
	hub.AddSink(&captureSink{})
	if updates, next, err := hub.Fetch(context.Background(), 5, 0, true); updates != nil || next != 5 || err != nil {
		t.Fatalf("nil hub Fetch = %v %d %v", updates, next, err)
	}
}
