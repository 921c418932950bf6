package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
	"github.com/urfave/cli/v2"

	"github.com/gyaneshwarpardhi/scoutcue/internal/api"
	"github.com/gyaneshwarpardhi/scoutcue/internal/audio"
	"github.com/gyaneshwarpardhi/scoutcue/internal/config"
	"github.com/gyaneshwarpardhi/scoutcue/internal/diag"
	"github.com/gyaneshwarpardhi/scoutcue/internal/liveclient"
	"github.com/gyaneshwarpardhi/scoutcue/internal/mediacache"
	"github.com/gyaneshwarpardhi/scoutcue/internal/poller"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

const shutdownTimeout = 10 * time.Second

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "monitor the local match and play sounds",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "operator HTTP listen address (overrides http.addr)"},
			&cli.StringFlag{Name: "sink", Usage: "audio sink (overrides audio.sink)"},
		},
		Action: run,
	}
}

func run(c *cli.Context) error {
	s, err := loadSettings(c)
	if err != nil {
		return err
	}
	if v := c.String("addr"); v != "" {
		s.HTTP.Addr = v
	}
	if v := c.String("sink"); v != "" {
		s.Audio.Sink = v
	}
	logger := newLogger(s)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Sound pack ───────────────────────────────────────────────────────────
	packs, err := config.NewPackLoader(s.Pack.Path, s.Pack.Overrides, logger)
	if err != nil {
		return err
	}
	pack := packs.Pack()
	logger.Info("sound pack loaded", "id", pack.ID, "name", pack.Name, "rules", len(pack.Rules))

	// ── Collaborators ────────────────────────────────────────────────────────
	hub := diag.NewHub(logger, 200)
	defer hub.Close()

	cache, err := newCache(ctx, s, logger)
	if err != nil {
		return err
	}
	defer cache.Close()

	sink, err := audio.DefaultRegistry().Build(s.Audio.Sink, audio.Config{SampleRate: s.Audio.SampleRate, Logger: logger})
	if err != nil {
		return err
	}
	source := liveclient.New(s.LiveClient.BaseURL, s.LiveClient.Timeout, liveclient.WithLogger(logger))

	loop := poller.New(cache, hub, poller.Config{
		Interval:       s.Poll.Interval,
		WarnWindow:     s.Poll.WarnWindow,
		StreamFallback: s.Audio.StreamFallback,
	}, logger)
	sessions := poller.NewManager(loop, source, sink, packs.Pack)

	// ── Pack hot-reload: new sessions pick it up, remote sounds warm now ─────
	packs.OnChange(func(p *soundpack.Pack) {
		n := cache.Prewarm(p.RemoteSources())
		hub.Emit("sound pack %q reloaded, pre-warming %d remote sounds; applies to the next session", p.Name, n)
	})
	stopWatch, err := packs.Watch()
	if err != nil {
		logger.Warn("pack watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── Supervisor tree ──────────────────────────────────────────────────────
	srv := &http.Server{
		Addr: s.HTTP.Addr,
		Handler: api.New(api.Deps{
			Sessions: sessions,
			Packs:    packs,
			Cache:    cache,
			Sink:     sink,
			Diag:     hub,
			Logger:   logger,
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 3 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	root := suture.New("scoutcue", suture.Spec{
		EventHook:        (&sutureslog.Handler{Logger: logger}).MustHook(),
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		Timeout:          shutdownTimeout,
	})
	root.Add(sessions)
	root.Add(&httpService{server: srv})

	logger.Info("scoutcue starting", "addr", s.HTTP.Addr, "sink", s.Audio.Sink, "cache", cache.Dir())
	err = <-root.ServeBackground(ctx)
	logger.Info("goodbye")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newCache(ctx context.Context, s *config.Settings, logger *slog.Logger) (*mediacache.Cache, error) {
	dl := mediacache.Router{
		Video:  mediacache.YtDlp{Path: s.YtDlp.Path},
		Direct: mediacache.NewHTTPFetcher(nil, mediacache.BreakerConfig{}, logger),
	}
	return mediacache.New(ctx, dl, mediacache.Options{
		Dir:            s.Cache.Dir,
		PrewarmWorkers: s.Cache.PrewarmWorkers,
		PrewarmQueue:   s.Cache.PrewarmQueue,
		Logger:         logger,
	})
}

// httpService runs the operator API under the supervisor.
type httpService struct {
	server *http.Server
}

func (h *httpService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := h.server.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *httpService) String() string { return "http-server" }
