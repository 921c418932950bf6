package poller

import (
	"context"
	"errors"
	"sync"

	"github.com/gyaneshwarpardhi/scoutcue/internal/audio"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

var ErrRunning = errors.New("a monitoring session is already running")

// PackFunc returns the sound pack a new session should use.
type PackFunc func() *soundpack.Pack

// Manager owns at most one session at a time. It runs as a supervised
// service: Serve starts a session and stops it when the supervisor shuts down.
type Manager struct {
	loop *Loop
	src  EventSource
	sink audio.Sink
	pack PackFunc

	mu   sync.Mutex
	base context.Context
	cur  *Session
}

func NewManager(loop *Loop, src EventSource, sink audio.Sink, pack PackFunc) *Manager {
	return &Manager{loop: loop, src: src, sink: sink, pack: pack, base: context.Background()}
}

// Start begins a session with the current pack. Sessions outlive the caller's
// request; they end on Stop or when the manager's Serve context ends.
func (m *Manager) Start() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil && m.cur.State() != Stopped {
		return m.cur, ErrRunning
	}
	s, err := m.loop.Start(m.base, m.src, m.pack(), m.sink)
	if err != nil {
		return nil, err
	}
	m.cur = s
	return s, nil
}

// Stop ends the running session and reports whether there was one.
func (m *Manager) Stop() bool {
	m.mu.Lock()
	s := m.cur
	m.cur = nil
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.Stop()
	return true
}

// Current returns the running session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil || m.cur.State() == Stopped {
		return nil
	}
	return m.cur
}

func (m *Manager) Serve(ctx context.Context) error {
	m.mu.Lock()
	m.base = ctx
	m.mu.Unlock()

	if _, err := m.Start(); err != nil && !errors.Is(err, ErrRunning) {
		return err
	}
	<-ctx.Done()
	m.Stop()
	return ctx.Err()
}

func (m *Manager) String() string { return "poll-session" }
