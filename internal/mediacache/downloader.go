package mediacache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// maxDownloadBytes bounds a single direct download.
const maxDownloadBytes = 64 << 20

// Router sends video-site addresses to Video and everything else to Direct.
type Router struct {
	Video  Downloader
	Direct Downloader
}

func (r Router) Fetch(ctx context.Context, address, dest string) error {
	if IsVideoSite(address) {
		return r.Video.Fetch(ctx, address, dest)
	}
	return r.Direct.Fetch(ctx, address, dest)
}

// IsVideoSite reports whether address points at a site that needs audio extraction.
func IsVideoSite(address string) bool {
	u, err := url.Parse(address)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Hostname()) {
	case "youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be":
		return true
	}
	return false
}

// YtDlp extracts audio with the external yt-dlp tool.
type YtDlp struct {
	// Path to the binary; "yt-dlp" from PATH when empty.
	Path string
}

func (y YtDlp) Fetch(ctx context.Context, address, dest string) error {
	bin := y.Path
	if bin == "" {
		bin = "yt-dlp"
	}
	// yt-dlp chooses the extension itself; point it at a sibling and move the result.
	base := dest + ".yt"
	cmd := exec.CommandContext(ctx, bin,
		"-x",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", base+".%(ext)s",
		"--no-playlist",
		"--no-warnings",
		"--force-overwrites",
		address,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	produced := base + ".mp3"
	defer os.Remove(produced)
	if err := os.Rename(produced, dest); err != nil {
		return fmt.Errorf("yt-dlp output: %w", err)
	}
	return nil
}

// BreakerConfig tunes the per-host circuit breakers of an HTTPFetcher.
type BreakerConfig struct {
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPFetcher downloads direct audio links. Each host gets its own circuit
// breaker so one dead CDN does not slow down every pre-warm.
type HTTPFetcher struct {
	client *http.Client
	cfg    BreakerConfig
	logger *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// NewHTTPFetcher returns a fetcher using client (http.DefaultClient when nil).
func NewHTTPFetcher(client *http.Client, cfg BreakerConfig, logger *slog.Logger) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPFetcher{client: client, cfg: cfg, logger: logger, breakers: make(map[string]*gobreaker.CircuitBreaker[struct{}])}
}

func (h *HTTPFetcher) breaker(host string) *gobreaker.CircuitBreaker[struct{}] {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cb, ok := h.breakers[host]; ok {
		return cb
	}
	threshold := h.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     h.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			h.logger.Info("download breaker state changed", "host", name, "from", from.String(), "to", to.String())
		},
	})
	h.breakers[host] = cb
	return cb
}

func (h *HTTPFetcher) Fetch(ctx context.Context, address, dest string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	_, err = h.breaker(u.Host).Execute(func() (struct{}, error) {
		return struct{}{}, h.get(ctx, address, dest)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("host %s unavailable: %w", u.Host, err)
	}
	return err
}

func (h *HTTPFetcher) get(ctx context.Context, address, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(resp.Body, maxDownloadBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > maxDownloadBytes {
		return fmt.Errorf("response larger than %d bytes", maxDownloadBytes)
	}
	return nil
}
