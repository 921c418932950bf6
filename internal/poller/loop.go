// Package poller drives a monitoring session: poll the event log, keep the
// new events, decide a sound for each, resolve it and hand it to the sink.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/scoutcue/internal/audio"
	"github.com/gyaneshwarpardhi/scoutcue/internal/engine"
	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/mediacache"
	"github.com/gyaneshwarpardhi/scoutcue/internal/metrics"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
	"github.com/gyaneshwarpardhi/scoutcue/internal/watermark"
)

// EventSource is the upstream match API.
type EventSource interface {
	// Poll returns the whole event log so far. It fails while no match runs.
	Poll(ctx context.Context) ([]event.GameEvent, error)
	// LocalParticipant returns nil while the local player is not known yet.
	LocalParticipant(ctx context.Context) (*event.Participant, error)
	Roster(ctx context.Context) ([]event.Participant, error)
}

// MediaCache resolves sound sources to local files.
type MediaCache interface {
	Resolve(ctx context.Context, src soundpack.Source) (string, error)
	Prewarm(addresses []string) int
}

// Diagnostics receives human-readable progress lines.
type Diagnostics interface {
	Emit(format string, args ...any)
}

// Config tunes a Loop.
type Config struct {
	Interval       time.Duration
	WarnWindow     time.Duration
	StreamFallback bool
}

// Loop starts sessions that share one cache and one diagnostics channel.
type Loop struct {
	cache  MediaCache
	diag   Diagnostics
	cfg    Config
	logger *slog.Logger
}

// New returns a Loop. Zero intervals default to one poll per second and one
// unavailable-upstream warning per thirty seconds.
func New(cache MediaCache, diag Diagnostics, cfg Config, logger *slog.Logger) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.WarnWindow <= 0 {
		cfg.WarnWindow = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{cache: cache, diag: diag, cfg: cfg, logger: logger}
}

// State of a session.
type State int32

const (
	Idle State = iota
	Polling
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	}
	return "stopped"
}

// Session is one running monitor. Its pack is fixed for its lifetime.
type Session struct {
	id        string
	startedAt time.Time
	src       EventSource
	sink      audio.Sink
	engine    *engine.Engine
	loop      *Loop
	logger    *slog.Logger

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	state     atomic.Int32
	mark      atomic.Int64
	marked    atomic.Bool
	processed atomic.Int64

	// owned by the session goroutine
	wm         watermark.Watermark
	local      *event.Participant
	warn       rate.Sometimes
	upstreamUp bool
}

// Start compiles pack, pre-warms its remote sources and begins polling.
// Cancelling ctx has the same effect as Stop, without waiting.
func (l *Loop) Start(ctx context.Context, src EventSource, pack *soundpack.Pack, sink audio.Sink) (*Session, error) {
	eng, err := engine.New(pack)
	if err != nil {
		return nil, fmt.Errorf("compile sound pack %q: %w", pack.ID, err)
	}
	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		id:        uuid.NewString(),
		startedAt: time.Now(),
		src:       src,
		sink:      sink,
		engine:    eng,
		loop:      l,
		cancel:    cancel,
		done:      make(chan struct{}),
		warn:      rate.Sometimes{Interval: l.cfg.WarnWindow},
	}
	s.logger = l.logger.With("session", s.id)

	if remote := pack.RemoteSources(); len(remote) > 0 {
		n := l.cache.Prewarm(remote)
		l.diag.Emit("pre-warming %d of %d remote sounds", n, len(remote))
	}
	l.diag.Emit("monitoring started with sound pack %q (%d rules)", pack.Name, len(pack.Rules))
	s.logger.Info("session started", "pack", pack.ID, "interval", l.cfg.Interval)

	go s.run(sctx)
	return s, nil
}

func (s *Session) ID() string            { return s.id }
func (s *Session) StartedAt() time.Time  { return s.startedAt }
func (s *Session) State() State          { return State(s.state.Load()) }
func (s *Session) Done() <-chan struct{} { return s.done }
func (s *Session) Processed() int64      { return s.processed.Load() }

// Watermark returns the highest sequence id processed so far.
func (s *Session) Watermark() (int64, bool) {
	return s.mark.Load(), s.marked.Load()
}

// Stop schedules no further cycles and waits for the one in flight, if any.
func (s *Session) Stop() {
	s.stopOnce.Do(s.cancel)
	<-s.done
}

func (s *Session) run(ctx context.Context) {
	defer func() {
		s.state.Store(int32(Stopped))
		s.loop.diag.Emit("monitoring stopped")
		s.logger.Info("session stopped", "processed", s.processed.Load())
		close(s.done)
	}()

	ticker := time.NewTicker(s.loop.cfg.Interval)
	defer ticker.Stop()
	for {
		// A cycle in flight finishes even if Stop is called meanwhile.
		s.cycle(context.WithoutCancel(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Session) cycle(ctx context.Context) {
	s.state.Store(int32(Polling))
	defer s.state.Store(int32(Idle))
	start := time.Now()
	defer func() { metrics.PollDuration.Observe(float64(time.Since(start).Milliseconds())) }()

	events, err := s.src.Poll(ctx)
	if err != nil {
		metrics.Polls.WithLabelValues("unavailable").Inc()
		s.upstreamUp = false
		s.warn.Do(func() {
			s.loop.diag.Emit("waiting for a match: %v", err)
			s.logger.Info("event source unavailable", "err", err)
		})
		return
	}
	metrics.Polls.WithLabelValues("ok").Inc()
	if !s.upstreamUp {
		s.upstreamUp = true
		s.loop.diag.Emit("match detected, %d events in log", len(events))
		s.newMatch(events)
	}

	fresh := s.wm.Filter(events)
	if len(fresh) == 0 {
		return
	}
	if v, ok := s.wm.Value(); ok {
		s.mark.Store(v)
		s.marked.Store(true)
		metrics.Watermark.Set(float64(v))
	}
	metrics.EventsAdmitted.Add(float64(len(fresh)))

	// Contexts for the whole batch are built from one roster snapshot before
	// any rule runs.
	builder := s.builder(ctx)
	contexts := make([]matchctx.EventContext, 0, len(fresh))
	for _, ev := range fresh {
		ec, err := builder.Build(ev)
		if err != nil {
			metrics.EventsMalformed.Inc()
			s.logger.Debug("event skipped", "seq", ev.Seq, "name", ev.Name, "err", err)
			s.loop.diag.Emit("event %d (%s) skipped: %v", ev.Seq, ev.Name, err)
			continue
		}
		s.loop.diag.Emit("new event %d: %s", ev.Seq, describe(ec))
		contexts = append(contexts, ec)
	}
	for _, ec := range contexts {
		s.handle(ctx, ec)
		s.processed.Add(1)
	}
}

// newMatch starts over when the log that came back after an outage ends
// below the watermark. Event ids restart with every match, so that log
// belongs to a new one. A log that still reaches the watermark is the same
// match resuming and keeps its history.
func (s *Session) newMatch(events []event.GameEvent) {
	v, ok := s.wm.Value()
	if !ok || len(events) == 0 {
		return
	}
	top := events[0].Seq
	for _, ev := range events[1:] {
		top = max(top, ev.Seq)
	}
	if top >= v {
		return
	}
	s.wm.Reset()
	s.local = nil
	s.marked.Store(false)
	s.mark.Store(0)
	s.logger.Info("event log restarted, watermark reset", "previous", v, "log_max", top)
	s.loop.diag.Emit("new match: event log restarted below %d, watermark reset", v)
}

func (s *Session) builder(ctx context.Context) *matchctx.Builder {
	if s.local == nil {
		local, err := s.src.LocalParticipant(ctx)
		if err != nil {
			s.logger.Debug("local participant lookup failed", "err", err)
		}
		if local != nil {
			s.local = local
			s.loop.diag.Emit("local player identified as %s", local.DisplayName())
		}
	}
	roster, err := s.src.Roster(ctx)
	if err != nil {
		s.logger.Debug("roster lookup failed", "err", err)
		s.loop.diag.Emit("roster unavailable, teams unresolved for this batch: %v", err)
	}
	return matchctx.NewBuilder(s.local, roster)
}

func (s *Session) handle(ctx context.Context, ec matchctx.EventContext) {
	d, ok := s.engine.Decide(ec)
	if !ok {
		s.loop.diag.Emit("event %d (%s): nothing to play, no rule matched and no default sound", ec.Seq, ec.Kind)
		return
	}
	if d.Origin == engine.OriginRule {
		s.loop.diag.Emit("event %d (%s): rule %q matched, sound %q", ec.Seq, ec.Kind, d.RuleName, d.Entry.ID)
	} else {
		s.loop.diag.Emit("event %d (%s): default sound %q", ec.Seq, ec.Kind, d.Entry.ID)
	}

	src := d.Entry.Source
	path, err := s.loop.cache.Resolve(ctx, src)
	if err != nil {
		if s.stream(ctx, ec, d, err) {
			return
		}
		metrics.Playback.WithLabelValues("error").Inc()
		s.logger.Warn("sound unavailable", "seq", ec.Seq, "source", src.String(), "err", err)
		s.loop.diag.Emit("event %d: cannot resolve sound %q: %v", ec.Seq, d.Entry.ID, err)
		return
	}
	s.loop.diag.Emit("event %d: sound resolved to %s", ec.Seq, path)

	if err := s.sink.Play(ctx, path, d.Volume); err != nil {
		metrics.Playback.WithLabelValues("error").Inc()
		s.logger.Warn("playback failed", "seq", ec.Seq, "path", path, "err", err)
		s.loop.diag.Emit("event %d: playback failed: %v", ec.Seq, err)
		return
	}
	metrics.Playback.WithLabelValues("ok").Inc()
	s.loop.diag.Emit("event %d: playback queued at volume %.2f", ec.Seq, d.Volume)
}

// stream plays a remote source directly after its download failed, when the
// sink can and the address is a plain audio link.
func (s *Session) stream(ctx context.Context, ec matchctx.EventContext, d engine.Decision, cause error) bool {
	src := d.Entry.Source
	if !s.loop.cfg.StreamFallback || !src.Remote() || !errors.Is(cause, mediacache.ErrDownloadFailed) || mediacache.IsVideoSite(src.URL) {
		return false
	}
	ss, ok := s.sink.(audio.StreamSink)
	if !ok {
		return false
	}
	if err := ss.PlayURL(ctx, src.URL, d.Volume); err != nil {
		s.logger.Warn("stream fallback failed", "seq", ec.Seq, "url", src.URL, "err", err)
		return false
	}
	metrics.Playback.WithLabelValues("streamed").Inc()
	s.loop.diag.Emit("event %d: download failed (%v), streaming %s directly", ec.Seq, cause, src.URL)
	return true
}

func describe(ec matchctx.EventContext) string {
	switch ec.Kind {
	case event.KindKill:
		return fmt.Sprintf("%s killed %s", ec.Actor.Name, ec.Target.Name)
	case event.KindMultiKill:
		return fmt.Sprintf("%s %s kill", ec.Actor.Name, ec.MultiKill)
	case event.KindFirstBlood:
		return fmt.Sprintf("first blood for %s", ec.Actor.Name)
	case event.KindObjective:
		if ec.Stolen {
			return fmt.Sprintf("%s stolen by %s", ec.Objective, ec.Actor.Name)
		}
		return fmt.Sprintf("%s taken by %s", ec.Objective, ec.Actor.Name)
	case event.KindAce:
		return fmt.Sprintf("ace by the %s team", sideOr(ec.Side, "unknown"))
	case event.KindGameEnd:
		return fmt.Sprintf("match over (%s)", ec.Outcome)
	}
	return string(ec.Kind)
}

func sideOr(s matchctx.Side, fallback string) string {
	if s == matchctx.SideUnknown {
		return fallback
	}
	return string(s)
}
