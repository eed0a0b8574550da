package notify

import (
	"context"
	"testing"
	"time"
)

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 1)
	defer cleanup()

	dispatcher.Publish(Message{
		UserID:    1,
		Type:      BillVotedOn,
		BillIDs:   []uint{10, 11},
		Timestamp: time.Now().UTC(),
	})

	select {
	case received := <-stream:
		if received.Type != BillVotedOn {
			t.Fatalf("expected type %s, got %s", BillVotedOn, received.Type)
		}
		if len(received.BillIDs) != 2 {
			t.Fatalf("expected 2 bill ids, got %d", len(received.BillIDs))
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message within deadline")
	}
}

func TestDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, 2)
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, 3)
	defer otherCleanup()
	allStream, allCleanup := dispatcher.Subscribe(ctx, AllUsers)
	defer allCleanup()

	dispatcher.Publish(Message{UserID: 3, Type: BillSummaryUpdated, BillIDs: []uint{12}})

	select {
	case <-userStream:
		t.Fatal("did not expect message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	for name, stream := range map[string]<-chan Message{"user": otherStream, "all": allStream} {
		select {
		case msg := <-stream:
			if msg.UserID != 3 {
				t.Fatalf("%s stream: expected user 3, received %d", name, msg.UserID)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("%s stream: expected message", name)
		}
	}
}

func TestDispatcherCleanupOnContextCancel(t *testing.T) {
	dispatcher := NewDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = dispatcher.Subscribe(ctx, 4)
	cancel()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dispatcher.mu.RLock()
		remaining := len(dispatcher.subscribers)
		dispatcher.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected subscriber to be removed after cancel")
}
