package feed

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"eventattendance/internal/queue"
	"eventattendance/internal/store"
	"eventattendance/internal/testinfra"
)

func TestRedisFeedCapsAndLogsMalformedEntries(t *testing.T) {
	addr := testinfra.StartRedis(t)
	client := store.NewRedis(addr)
	t.Cleanup(func() { _ = client.Close() })

	var logs bytes.Buffer
	f := NewRedis(client.Client, 3, zerolog.New(&logs))
	ctx := context.Background()

	for _, htno := range []string{"a", "b", "c", "d"} {
		if err := f.Push(ctx, queue.Scan{EventID: "e1", HTNO: htno}); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	got, err := f.Recent(ctx, "e1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 3 || got[0].HTNO != "d" || got[2].HTNO != "b" {
		t.Fatalf("Recent = %+v, want d c b", got)
	}

	if err := client.Client.LPush(ctx, "attendance:feed:e1", "{not json").Err(); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	got, err = f.Recent(ctx, "e1", 0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 2 || got[0].HTNO != "d" {
		t.Errorf("Recent after bad entry = %+v", got)
	}
	if !strings.Contains(logs.String(), "malformed feed entry") || !strings.Contains(logs.String(), `"event_id":"e1"`) {
		t.Errorf("malformed entry not logged: %s", logs.String())
	}
}
