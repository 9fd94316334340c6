package queue

import (
	"context"
	"testing"
	"time"
)

func TestEncodeDecode(t *testing.T) {
	in := Scan{
		EventID:   "e1",
		HTNO:      "21A91A0501",
		RegType:   "spot",
		Status:    "present",
		Source:    "device",
		ScannedAt: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("Decode(Encode(x)) = %+v, want %+v", out, in)
	}
	if _, err := Decode([]byte("checkin|abc")); err == nil {
		t.Error("expected error for non-JSON payload")
	}
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := NewInMemory(2)
	scans, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := q.Publish(ctx, Scan{HTNO: "h1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case s := <-scans:
		if s.HTNO != "h1" {
			t.Errorf("got %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for scan")
	}

	cancel()
	select {
	case _, ok := <-scans:
		if ok {
			t.Error("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("consumer channel not closed")
	}
}

func TestInMemoryPublishRespectsContext(t *testing.T) {
	q := NewInMemory(1)
	if err := q.Publish(context.Background(), Scan{}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := q.Publish(ctx, Scan{}); err == nil {
		t.Fatal("expected full queue to return ctx error")
	}
}
