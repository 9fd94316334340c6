// Package feed keeps the most recent scans per event for operator screens.
package feed

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"eventattendance/internal/queue"
)

// Feed stores a bounded, newest-first list of scans per event.
type Feed interface {
	Push(ctx context.Context, scan queue.Scan) error
	Recent(ctx context.Context, eventID string, limit int) ([]queue.Scan, error)
}

// Memory is an in-process Feed.
type Memory struct {
	size int
	mu   sync.Mutex
	byID map[string][]queue.Scan
}

// NewMemory creates a feed keeping size entries per event.
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 50
	}
	return &Memory{size: size, byID: make(map[string][]queue.Scan)}
}

func (m *Memory) Push(ctx context.Context, scan queue.Scan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := append([]queue.Scan{scan}, m.byID[scan.EventID]...)
	if len(list) > m.size {
		list = list[:m.size]
	}
	m.byID[scan.EventID] = list
	return nil
}

func (m *Memory) Recent(ctx context.Context, eventID string, limit int) ([]queue.Scan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.byID[eventID]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]queue.Scan, limit)
	copy(out, list[:limit])
	return out, nil
}

// Drain moves scans from q into f until the consumer channel closes.
func Drain(ctx context.Context, q queue.Queue, f Feed, log zerolog.Logger) error {
	scans, err := q.Consume(ctx)
	if err != nil {
		return err
	}
	for scan := range scans {
		if err := f.Push(ctx, scan); err != nil {
			log.Error().Err(err).Str("event_id", scan.EventID).Str("htno", scan.HTNO).Msg("feed push failed")
			continue
		}
		log.Debug().Str("event_id", scan.EventID).Str("htno", scan.HTNO).Str("status", scan.Status).Msg("scan recorded")
	}
	return nil
}
