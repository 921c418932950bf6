package poller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gyaneshwarpardhi/scoutcue/internal/audio"
	"github.com/gyaneshwarpardhi/scoutcue/internal/event"
	"github.com/gyaneshwarpardhi/scoutcue/internal/matchctx"
	"github.com/gyaneshwarpardhi/scoutcue/internal/mediacache"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

type fakeSource struct {
	mu     sync.Mutex
	batch  []event.GameEvent
	err    error
	polls  atomic.Int32
	local  *event.Participant
	roster []event.Participant
}

func (f *fakeSource) Poll(context.Context) ([]event.GameEvent, error) {
	f.polls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]event.GameEvent(nil), f.batch...), nil
}

func (f *fakeSource) LocalParticipant(context.Context) (*event.Participant, error) {
	return f.local, nil
}

func (f *fakeSource) Roster(context.Context) ([]event.Participant, error) {
	return f.roster, nil
}

type fakeCache struct {
	fail     error
	prewarms atomic.Int32
}

func (c *fakeCache) Resolve(_ context.Context, src soundpack.Source) (string, error) {
	if c.fail != nil {
		return "", c.fail
	}
	if src.Remote() {
		return "/cache/" + mediacache.FileName(src.URL), nil
	}
	return "/sounds/" + src.Path, nil
}

func (c *fakeCache) Prewarm(addresses []string) int {
	c.prewarms.Add(int32(len(addresses)))
	return len(addresses)
}

type recorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *recorder) Emit(format string, args ...any) {
	r.mu.Lock()
	r.lines = append(r.lines, fmt.Sprintf(format, args...))
	r.mu.Unlock()
}

func (r *recorder) count(substr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, l := range r.lines {
		if strings.Contains(l, substr) {
			n++
		}
	}
	return n
}

func sound(id string, src soundpack.Source) soundpack.Entry {
	return soundpack.Entry{ID: id, Source: src, Volume: 1, Enabled: true}
}

// examplePack has a penta rule at priority 100 and a default kill pool.
func examplePack() *soundpack.Pack {
	p := soundpack.Default()
	p.Rules = []soundpack.Rule{{
		ID: "penta", Name: "Penta", Enabled: true, Priority: 100, Logic: soundpack.LogicAll,
		Conditions: []soundpack.Condition{{Type: soundpack.CondMultikill, KillTypes: []matchctx.MultiKill{matchctx.MultiKillPenta}}},
		Sounds:     soundpack.Pool{Sounds: []soundpack.Entry{sound("p", soundpack.FileSource("penta.mp3"))}},
	}}
	p.Defaults = map[event.Kind]soundpack.Pool{
		event.KindKill: {Sounds: []soundpack.Entry{sound("d", soundpack.FileSource("kill.mp3"))}},
	}
	return p
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting: %s", msg)
}

func newLoop(cache MediaCache, diag Diagnostics, cfg Config) *Loop {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Millisecond
	}
	return New(cache, diag, cfg, nil)
}

func TestSession_PlaysEachEventOnce(t *testing.T) {
	src := &fakeSource{batch: []event.GameEvent{{Seq: 1, Name: "ChampionKill", Kind: event.KindKill, Killer: "A", Victim: "B", KillStreak: 1}}}
	sink := audio.NewLogSink(nil)
	rec := &recorder{}

	s, err := newLoop(&fakeCache{}, rec, Config{}).Start(context.Background(), src, examplePack(), sink)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	eventually(t, func() bool { return src.polls.Load() >= 4 }, "several polls")
	s.Stop()

	played := sink.Played()
	if len(played) != 1 {
		t.Fatalf("played %d sounds, want 1: %+v", len(played), played)
	}
	if played[0].Path != "/sounds/kill.mp3" || played[0].Volume != 1 {
		t.Errorf("played %+v, want default kill sound at volume 1", played[0])
	}
	if v, ok := s.Watermark(); !ok || v != 1 {
		t.Errorf("Watermark = %d, %v; want 1, true", v, ok)
	}
	if s.Processed() != 1 {
		t.Errorf("Processed = %d, want 1", s.Processed())
	}
	if rec.count(`default sound "d"`) != 1 {
		t.Errorf("expected one default-sound diagnostic, got lines %v", rec.lines)
	}
}

func kill(seq int64) event.GameEvent {
	return event.GameEvent{Seq: seq, Name: "ChampionKill", Kind: event.KindKill, Killer: "A", Victim: "B", KillStreak: 1}
}

func TestSession_GrowingLogPlaysOnlyNewEvents(t *testing.T) {
	src := &fakeSource{batch: []event.GameEvent{kill(1)}}
	sink := audio.NewLogSink(nil)
	s, err := newLoop(&fakeCache{}, &recorder{}, Config{}).Start(context.Background(), src, examplePack(), sink)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Stop()
	eventually(t, func() bool { return len(sink.Played()) == 1 }, "first kill")

	src.mu.Lock()
	src.batch = []event.GameEvent{kill(1), kill(3), kill(2)}
	src.mu.Unlock()
	eventually(t, func() bool { return len(sink.Played()) == 3 }, "two more kills")
	eventually(t, func() bool { v, _ := s.Watermark(); return v == 3 }, "watermark 3")
}

func TestSession_UnavailableWarnsOncePerWindow(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	rec := &recorder{}
	s, err := newLoop(&fakeCache{}, rec, Config{WarnWindow: time.Hour}).Start(context.Background(), src, examplePack(), audio.NewLogSink(nil))
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return src.polls.Load() >= 5 }, "repeated polls")
	s.Stop()

	if n := rec.count("waiting for a match"); n != 1 {
		t.Errorf("got %d unavailable warnings, want 1", n)
	}
	if _, ok := s.Watermark(); ok {
		t.Error("watermark set without any event")
	}
}

func TestSession_MalformedEventSkipped(t *testing.T) {
	src := &fakeSource{batch: []event.GameEvent{
		{Seq: 1, Name: "ChampionKill", Kind: event.KindKill},
		{Seq: 2, Name: "ChampionKill", Kind: event.KindKill, Killer: "A", Victim: "B", KillStreak: 1},
	}}
	sink := audio.NewLogSink(nil)
	rec := &recorder{}
	s, err := newLoop(&fakeCache{}, rec, Config{}).Start(context.Background(), src, examplePack(), sink)
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return len(sink.Played()) == 1 }, "valid kill played")
	s.Stop()

	if rec.count("event 1 (ChampionKill) skipped") != 1 {
		t.Errorf("missing skip diagnostic: %v", rec.lines)
	}
	if v, _ := s.Watermark(); v != 2 {
		t.Errorf("Watermark = %d, want 2", v)
	}
}

func TestSession_NothingToPlay(t *testing.T) {
	src := &fakeSource{batch: []event.GameEvent{{Seq: 1, Name: "GameStart", Kind: event.KindGameStart}}}
	sink := audio.NewLogSink(nil)
	rec := &recorder{}
	s, err := newLoop(&fakeCache{}, rec, Config{}).Start(context.Background(), src, examplePack(), sink)
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return rec.count("nothing to play") == 1 }, "nothing-to-play diagnostic")
	s.Stop()
	if len(sink.Played()) != 0 {
		t.Errorf("played %v, want nothing", sink.Played())
	}
}

func TestSession_StreamFallback(t *testing.T) {
	const addr = "https://sounds.example.com/kill.ogg"
	pack := examplePack()
	pack.Defaults[event.KindKill] = soundpack.Pool{Sounds: []soundpack.Entry{sound("remote", soundpack.URLSource(addr))}}
	src := &fakeSource{batch: []event.GameEvent{{Seq: 1, Name: "ChampionKill", Kind: event.KindKill, Killer: "A", Victim: "B", KillStreak: 1}}}

	tests := []struct {
		name     string
		fallback bool
		want     []audio.Played
	}{
		{"enabled", true, []audio.Played{{Path: addr, Volume: 1, Stream: true}}},
		{"disabled", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := &fakeCache{fail: fmt.Errorf("%w: status 503", mediacache.ErrDownloadFailed)}
			sink := audio.NewLogSink(nil)
			rec := &recorder{}
			s, err := newLoop(cache, rec, Config{StreamFallback: tt.fallback}).Start(context.Background(), src, pack, sink)
			if err != nil {
				t.Fatal(err)
			}
			eventually(t, func() bool { return src.polls.Load() >= 3 && rec.count("event 1:") > 0 }, "event handled")
			s.Stop()

			got := sink.Played()
			if len(got) != len(tt.want) || (len(got) == 1 && got[0] != tt.want[0]) {
				t.Errorf("played %+v, want %+v", got, tt.want)
			}
			if cache.prewarms.Load() != 1 {
				t.Errorf("prewarmed %d sources, want 1", cache.prewarms.Load())
			}
		})
	}
}

func TestSession_StopWaitsAndHalts(t *testing.T) {
	src := &fakeSource{}
	s, err := newLoop(&fakeCache{}, &recorder{}, Config{}).Start(context.Background(), src, examplePack(), audio.NewLogSink(nil))
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return src.polls.Load() >= 2 }, "polling")
	s.Stop()
	s.Stop()

	if s.State() != Stopped {
		t.Errorf("State = %v, want stopped", s.State())
	}
	n := src.polls.Load()
	time.Sleep(30 * time.Millisecond)
	if src.polls.Load() != n {
		t.Errorf("polled after Stop: %d -> %d", n, src.polls.Load())
	}
}

// blockingSink holds every Play until release is closed.
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu    sync.Mutex
	paths []string
}

func newBlockingSink() *blockingSink {
	return &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingSink) Play(ctx context.Context, path string, _ float64) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.mu.Lock()
	b.paths = append(b.paths, path)
	b.mu.Unlock()
	return ctx.Err()
}

func (b *blockingSink) played() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.paths)
}

func TestSession_StopMidCycleFinishesBatch(t *testing.T) {
	src := &fakeSource{batch: []event.GameEvent{kill(1), kill(2)}}
	sink := newBlockingSink()
	s, err := newLoop(&fakeCache{}, &recorder{}, Config{}).Start(context.Background(), src, examplePack(), sink)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never entered Play")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("Stop returned while a cycle was still playing")
	case <-time.After(30 * time.Millisecond):
	}

	close(sink.release)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the cycle finished")
	}

	if n := sink.played(); n != 2 {
		t.Errorf("played %d sounds, want 2", n)
	}
	if v, ok := s.Watermark(); !ok || v != 2 {
		t.Errorf("Watermark = %d, %v; want 2, true", v, ok)
	}
	if s.Processed() != 2 {
		t.Errorf("Processed = %d, want 2", s.Processed())
	}
}

func TestSession_NewMatchResetsWatermark(t *testing.T) {
	tests := []struct {
		name      string
		next      []event.GameEvent
		wantPlays int
		wantMark  int64
	}{
		{"restarted log plays again", []event.GameEvent{kill(0), kill(1)}, 5, 1},
		{"same match resumes", []event.GameEvent{kill(0), kill(1), kill(2), kill(3)}, 4, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{batch: []event.GameEvent{kill(0), kill(1), kill(2)}}
			sink := audio.NewLogSink(nil)
			rec := &recorder{}
			s, err := newLoop(&fakeCache{}, rec, Config{}).Start(context.Background(), src, examplePack(), sink)
			if err != nil {
				t.Fatal(err)
			}
			defer s.Stop()
			eventually(t, func() bool { return len(sink.Played()) == 3 }, "first match")

			src.mu.Lock()
			src.err = errors.New("connection refused")
			src.mu.Unlock()
			eventually(t, func() bool { return rec.count("waiting for a match") == 1 }, "outage noticed")

			src.mu.Lock()
			src.err = nil
			src.batch = tt.next
			src.mu.Unlock()
			eventually(t, func() bool { return len(sink.Played()) == tt.wantPlays }, "second log handled")
			n := src.polls.Load()
			eventually(t, func() bool { return src.polls.Load() >= n+3 }, "more polls")

			if got := len(sink.Played()); got != tt.wantPlays {
				t.Errorf("played %d sounds, want %d", got, tt.wantPlays)
			}
			if v, _ := s.Watermark(); v != tt.wantMark {
				t.Errorf("Watermark = %d, want %d", v, tt.wantMark)
			}
		})
	}
}

func TestStart_BadPack(t *testing.T) {
	p := examplePack()
	p.Rules[0].Conditions = []soundpack.Condition{{Type: soundpack.CondExpression, Expression: "kind =="}}
	if _, err := newLoop(&fakeCache{}, &recorder{}, Config{}).Start(context.Background(), &fakeSource{}, p, audio.NewLogSink(nil)); err == nil {
		t.Fatal("Start accepted a pack with an invalid expression")
	}
}

func TestManager(t *testing.T) {
	src := &fakeSource{}
	m := NewManager(newLoop(&fakeCache{}, &recorder{}, Config{}), src, audio.NewLogSink(nil), examplePack)

	if m.Current() != nil {
		t.Fatal("Current before Start should be nil")
	}
	s, err := m.Start()
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	again, err := m.Start()
	if !errors.Is(err, ErrRunning) || again != s {
		t.Fatalf("second Start = %v, %v; want the running session and ErrRunning", again, err)
	}
	if m.Current() != s {
		t.Error("Current is not the running session")
	}
	if !m.Stop() {
		t.Error("Stop reported no session")
	}
	if m.Stop() {
		t.Error("second Stop reported a session")
	}
}

func TestManager_ServeStopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	m := NewManager(newLoop(&fakeCache{}, &recorder{}, Config{}), src, audio.NewLogSink(nil), examplePack)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- m.Serve(ctx) }()

	eventually(t, func() bool { return m.Current() != nil && src.polls.Load() > 0 }, "session started by Serve")
	cancel()
	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
	if m.Current() != nil {
		t.Error("session still running after Serve returned")
	}
}
