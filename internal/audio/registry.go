package audio

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Config is what a sink factory may need.
type Config struct {
	SampleRate int
	Logger     *slog.Logger
}

// Factory builds a Sink.
type Factory func(Config) (Sink, error)

// Registry maps sink names (config audio.sink) to factories.
// Register is meant for startup; Build is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// DefaultRegistry knows the speaker and log sinks.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("speaker", func(c Config) (Sink, error) { return NewSpeakerSink(c.SampleRate, c.Logger), nil })
	r.Register("log", func(c Config) (Sink, error) { return NewLogSink(c.Logger), nil })
	return r
}

// Register adds a factory. Panics on duplicate names to surface misconfiguration early.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("audio registry: duplicate sink %q", name))
	}
	r.factories[name] = f
}

// Build constructs the sink registered under name.
func (r *Registry) Build(name string, cfg Config) (Sink, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no audio sink registered as %q (have %v)", name, r.Names())
	}
	return f(cfg)
}

// Names returns the registered sink names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for k := range r.factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
