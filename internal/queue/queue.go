package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Scan is published after every accepted check-in.
type Scan struct {
	EventID   string    `json:"event_id"`
	HTNO      string    `json:"htno"`
	Name      string    `json:"name"`
	RegID     string    `json:"reg_id"`
	RegType   string    `json:"reg_type"`
	Status    string    `json:"status"`
	Source    string    `json:"source"` // "device" or "manual"
	ScannedAt time.Time `json:"scanned_at"`
}

// Queue is the abstraction over the scan notification backends.
type Queue interface {
	Publish(ctx context.Context, scan Scan) error
	Consume(ctx context.Context) (<-chan Scan, error)
	Close() error
}

// Encode serializes a scan for transport.
func Encode(scan Scan) ([]byte, error) {
	return json.Marshal(scan)
}

// Decode parses a transported scan.
func Decode(b []byte) (Scan, error) {
	var s Scan
	if err := json.Unmarshal(b, &s); err != nil {
		return Scan{}, fmt.Errorf("decode scan: %w", err)
	}
	return s, nil
}

// InMemory is a bounded channel-backed queue for dev and tests.
type InMemory struct {
	ch chan Scan
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Scan, size)}
}

// Publish enqueues a scan, blocking while the buffer is full.
func (q *InMemory) Publish(ctx context.Context, scan Scan) error {
	select {
	case q.ch <- scan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel that is closed when ctx ends.
func (q *InMemory) Consume(ctx context.Context) (<-chan Scan, error) {
	out := make(chan Scan)
	go func() {
		defer close(out)
		for {
			select {
			case scan := <-q.ch:
				select {
				case out <- scan:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (q *InMemory) Close() error { return nil }
