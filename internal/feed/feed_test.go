package feed

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"eventattendance/internal/queue"
)

func TestMemoryNewestFirstAndCapped(t *testing.T) {
	f := NewMemory(3)
	ctx := context.Background()
	for _, htno := range []string{"a", "b", "c", "d"} {
		if err := f.Push(ctx, queue.Scan{EventID: "e1", HTNO: htno}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	_ = f.Push(ctx, queue.Scan{EventID: "e2", HTNO: "z"})

	got, err := f.Recent(ctx, "e1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"d", "c", "b"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, w := range want {
		if got[i].HTNO != w {
			t.Errorf("got[%d] = %s, want %s", i, got[i].HTNO, w)
		}
	}

	got, _ = f.Recent(ctx, "e1", 1)
	if len(got) != 1 || got[0].HTNO != "d" {
		t.Errorf("Recent(limit=1) = %+v", got)
	}
	got, _ = f.Recent(ctx, "missing", 10)
	if len(got) != 0 {
		t.Errorf("Recent(missing) = %+v, want empty", got)
	}
}

func TestDrainMovesScansIntoFeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.NewInMemory(4)
	f := NewMemory(10)
	done := make(chan struct{})
	go func() {
		_ = Drain(ctx, q, f, zerolog.Nop())
		close(done)
	}()

	if err := q.Publish(ctx, queue.Scan{EventID: "e1", HTNO: "h1", Status: "present"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		got, _ := f.Recent(ctx, "e1", 0)
		if len(got) == 1 {
			if got[0].HTNO != "h1" {
				t.Fatalf("unexpected scan %+v", got[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("scan never reached the feed")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not stop after cancel")
	}
}
