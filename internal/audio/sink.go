// Package audio plays resolved sound files.
package audio

import (
	"context"
	"log/slog"
	"sync"
)

// Sink plays a local audio file at a linear volume (1.0 = unchanged).
// Play queues the sound and returns; it does not wait for playback to end.
type Sink interface {
	Play(ctx context.Context, path string, volume float64) error
}

// StreamSink can also play a remote address directly, used when the address
// could not be cached.
type StreamSink interface {
	Sink
	PlayURL(ctx context.Context, url string, volume float64) error
}

// Played is one request recorded by a LogSink.
type Played struct {
	Path   string
	Volume float64
	Stream bool
}

// LogSink only logs and records what it was asked to play. Useful headless.
type LogSink struct {
	logger *slog.Logger

	mu     sync.Mutex
	played []Played
}

// NewLogSink returns a LogSink writing to logger.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Play(_ context.Context, path string, volume float64) error {
	s.record(Played{Path: path, Volume: volume})
	s.logger.Info("play", "path", path, "volume", volume)
	return nil
}

func (s *LogSink) PlayURL(_ context.Context, url string, volume float64) error {
	s.record(Played{Path: url, Volume: volume, Stream: true})
	s.logger.Info("stream", "url", url, "volume", volume)
	return nil
}

func (s *LogSink) record(p Played) {
	s.mu.Lock()
	s.played = append(s.played, p)
	s.mu.Unlock()
}

// Played returns a copy of everything played so far.
func (s *LogSink) Played() []Played {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Played(nil), s.played...)
}
