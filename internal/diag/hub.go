// Package diag carries human-readable progress lines (new event, rule
// matched, sound resolved, playback queued or failed) to whoever listens.
package diag

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// Topic is the pub/sub topic diagnostic lines are published on.
const Topic = "diagnostics"

// Line is one diagnostic message.
type Line struct {
	ID   string    `json:"id"`
	At   time.Time `json:"at"`
	Text string    `json:"text"`
}

// Hub fans diagnostic lines out to subscribers and keeps the most recent ones.
type Hub struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger

	mu   sync.Mutex
	ring []Line
	next int
	full bool
}

// NewHub keeps up to capacity recent lines.
func NewHub(logger *slog.Logger, capacity int) *Hub {
	if capacity <= 0 {
		capacity = 200
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		pubsub: gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 64}, watermill.NewSlogLogger(logger)),
		logger: logger,
		ring:   make([]Line, capacity),
	}
}

// Emit formats and publishes one line. It never blocks on slow subscribers
// beyond the pub/sub buffer.
func (h *Hub) Emit(format string, args ...any) {
	line := Line{ID: watermill.NewUUID(), At: time.Now(), Text: fmt.Sprintf(format, args...)}

	h.mu.Lock()
	h.ring[h.next] = line
	h.next = (h.next + 1) % len(h.ring)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()

	h.logger.Debug("diagnostic", "line", line.Text)
	msg := message.NewMessage(line.ID, []byte(line.Text))
	if err := h.pubsub.Publish(Topic, msg); err != nil {
		h.logger.Warn("publish diagnostic", "err", err)
	}
}

// Subscribe streams lines emitted after the call until ctx ends.
func (h *Hub) Subscribe(ctx context.Context) (<-chan string, error) {
	msgs, err := h.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return nil, fmt.Errorf("subscribe diagnostics: %w", err)
	}
	out := make(chan string, 16)
	go func() {
		defer close(out)
		for m := range msgs {
			m.Ack()
			select {
			case out <- string(m.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Recent returns up to n of the newest lines, oldest first. n <= 0 means all kept.
func (h *Hub) Recent(n int) []Line {
	h.mu.Lock()
	defer h.mu.Unlock()
	var all []Line
	if h.full {
		all = append(all, h.ring[h.next:]...)
	}
	all = append(all, h.ring[:h.next]...)
	if n > 0 && len(all) > n {
		all = all[len(all)-n:]
	}
	return all
}

// Close shuts the pub/sub down; subscriber channels close.
func (h *Hub) Close() error {
	return h.pubsub.Close()
}
