package events

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"github.com/frostime/sy-query-view/pkg/errors"
)

func testBus() *Bus { return NewBus(log.New(io.Discard)) }

func TestBusDelivery(t *testing.T) {
	b := testBus()
	ctx := context.Background()
	var got []string
	b.Subscribe(func(_ context.Context, e Event) { got = append(got, "all:"+string(e.Kind)) })
	cancel := b.Subscribe(func(_ context.Context, e Event) { got = append(got, "doc:"+e.DocID) }, DocumentDestroyed)
	b.Subscribe(func(context.Context, Event) { panic("boom") }, SyncStart)
	b.Subscribe(func(_ context.Context, e Event) { got = append(got, "sync:"+string(e.Kind)) }, SyncStart, SyncEnd, SyncFail)

	if n, err := b.Publish(ctx, Event{Kind: DocumentDestroyed, DocID: "d1"}); err != nil || n != 2 {
		t.Errorf("Publish(destroyed) = %d, %v; want 2 handlers", n, err)
	}
	if n, err := b.Publish(ctx, Event{Kind: SyncStart}); err != nil || n != 3 {
		t.Errorf("Publish(sync.start) = %d, %v; want 3 handlers", n, err)
	}
	cancel()
	b.Publish(ctx, Event{Kind: DocumentDestroyed, DocID: "d2"})

	want := []string{"all:document.destroyed", "doc:d1", "all:sync.start", "sync:sync.start", "all:document.destroyed"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}
	if b.Subscribers() != 3 {
		t.Errorf("Subscribers() = %d, want 3", b.Subscribers())
	}
}

func TestBusStampsTime(t *testing.T) {
	b := testBus()
	var at time.Time
	b.Subscribe(func(_ context.Context, e Event) { at = e.At })
	b.Publish(context.Background(), Event{Kind: SyncEnd})
	if at.IsZero() {
		t.Error("event time not set")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		e       Event
		wantErr bool
	}{
		{Event{Kind: DocumentDestroyed, DocID: "d"}, false},
		{Event{Kind: DocumentDestroyed}, true},
		{Event{Kind: SyncFail}, false},
		{Event{Kind: "doc.opened"}, true},
	}
	for _, tt := range tests {
		err := tt.e.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%+v) = %v, wantErr %v", tt.e, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("Validate(%+v) code = %s", tt.e, errors.GetCode(err))
		}
	}
	if _, err := testBus().Publish(context.Background(), Event{Kind: "bogus"}); err == nil {
		t.Error("Publish accepted an unknown kind")
	}
}

func TestDecode(t *testing.T) {
	e, err := Decode([]byte(`{"kind":"document.destroyed","doc_id":"d9"}`))
	if err != nil || e.DocID != "d9" || e.Kind != DocumentDestroyed {
		t.Errorf("Decode = %+v, %v", e, err)
	}
	if _, err := Decode([]byte(`{`)); err == nil {
		t.Error("Decode accepted malformed JSON")
	}
	if !SyncFail.IsSync() || DocumentDestroyed.IsSync() {
		t.Error("IsSync wrong")
	}
}

func TestRedisBridge(t *testing.T) {
	addr := os.Getenv("QUERYVIEW_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QUERYVIEW_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	b := testBus()
	got := make(chan Event, 1)
	b.Subscribe(func(_ context.Context, e Event) {
		select {
		case got <- e:
		default:
		}
	}, DocumentDestroyed)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bridge := NewRedisBridge(client, "queryview:test:"+t.Name(), b, log.New(io.Discard))
	done := make(chan error, 1)
	go func() { done <- bridge.Run(ctx) }()

	// Retry until the subscription is live.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := bridge.Publish(ctx, Event{Kind: DocumentDestroyed, DocID: "d1"}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
		select {
		case e := <-got:
			if e.DocID != "d1" {
				t.Errorf("DocID = %q", e.DocID)
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Run: %v", err)
			}
			return
		case <-tick.C:
		case <-deadline:
			t.Fatal("event not received")
		}
	}
}
