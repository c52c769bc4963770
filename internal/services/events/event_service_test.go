package events

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/leadgen/internal/interfaces"
)

func TestPublishSyncDeliversToAllSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls int64
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}

	if err := svc.Subscribe(interfaces.EventJobCompleted, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	if err := svc.Subscribe(interfaces.EventJobCompleted, handler); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	err := svc.PublishSync(context.Background(), interfaces.Event{
		Type:    interfaces.EventJobCompleted,
		Payload: map[string]string{"job_id": "job_1"},
	})
	if err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}

	if got := atomic.LoadInt64(&calls); got != 2 {
		t.Errorf("handler calls = %d, want 2", got)
	}
}

func TestPublishNoSubscribers(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	// Publishing with no subscribers is not an error
	err := svc.Publish(context.Background(), interfaces.Event{Type: interfaces.EventJobFailed})
	if err != nil {
		t.Errorf("Publish with no subscribers failed: %v", err)
	}
}

func TestUnsubscribe(t *testing.T) {
	svc := NewService(arbor.NewLogger())

	var calls int64
	handler := func(ctx context.Context, event interfaces.Event) error {
		atomic.AddInt64(&calls, 1)
		return nil
	}

	if err := svc.Subscribe(interfaces.EventLeadsPosted, handler); err != nil {
		t.Fatal(err)
	}
	if err := svc.Unsubscribe(interfaces.EventLeadsPosted, handler); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}

	if err := svc.PublishSync(context.Background(), interfaces.Event{Type: interfaces.EventLeadsPosted}); err != nil {
		t.Fatal(err)
	}
	if got := atomic.LoadInt64(&calls); got != 0 {
		t.Errorf("handler called %d times after unsubscribe", got)
	}
}
