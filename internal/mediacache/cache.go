// Package mediacache turns sound sources into playable local files. Remote
// sources are downloaded at most once at a time per address and kept on disk,
// so later sessions resolve them without the network.
package mediacache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/scoutcue/internal/metrics"
	"github.com/gyaneshwarpardhi/scoutcue/internal/soundpack"
)

var (
	// ErrNotFound: a local file source does not exist.
	ErrNotFound = errors.New("sound file not found")
	// ErrDownloadFailed: a remote source could not be fetched. Retried on the next request.
	ErrDownloadFailed = errors.New("download failed")
	// ErrCacheDir: the cache directory cannot be created. Fatal to a session.
	ErrCacheDir = errors.New("cache directory unavailable")
)

// Downloader writes the audio behind address to dest.
type Downloader interface {
	Fetch(ctx context.Context, address, dest string) error
}

// Options configures a Cache.
type Options struct {
	// Dir holds downloaded files. Created if missing.
	Dir string
	// BaseDir anchors relative file sources. Defaults to the executable's directory.
	BaseDir         string
	DownloadTimeout time.Duration
	PrewarmWorkers  int
	PrewarmQueue    int
	Logger          *slog.Logger
}

// flight is one in-progress download; done is closed when it settles.
type flight struct {
	done chan struct{}
	path string
	err  error
}

// Cache is safe for concurrent use. The lock guards only the two maps below,
// never a download or a filesystem call.
type Cache struct {
	dir     string
	baseDir string
	timeout time.Duration
	dl      Downloader
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	downloading map[string]*flight
	resolved    map[string]string
	closed      bool

	prewarm *workerPool[string]
}

// New creates the cache directory and starts the pre-warm workers.
func New(ctx context.Context, dl Downloader, opts Options) (*Cache, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: no directory configured", ErrCacheDir)
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheDir, err)
	}
	if opts.BaseDir == "" {
		exe, err := os.Executable()
		if err == nil {
			opts.BaseDir = filepath.Dir(exe)
		}
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 2 * time.Minute
	}
	if opts.PrewarmQueue <= 0 {
		opts.PrewarmQueue = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Cache{
		dir:         opts.Dir,
		baseDir:     opts.BaseDir,
		timeout:     opts.DownloadTimeout,
		dl:          dl,
		logger:      opts.Logger.With("component", "mediacache"),
		ctx:         cctx,
		cancel:      cancel,
		downloading: make(map[string]*flight),
		resolved:    make(map[string]string),
	}
	c.prewarm = newWorkerPool(cctx, opts.PrewarmWorkers, opts.PrewarmQueue, c.prewarmOne)
	return c, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Key is the stable cache key of a remote address.
func Key(address string) string {
	sum := sha256.Sum256([]byte(address))
	return hex.EncodeToString(sum[:16])
}

var audioExts = map[string]bool{".mp3": true, ".wav": true, ".ogg": true, ".flac": true}

// FileName is the on-disk name for address: its key plus an audio extension
// taken from the URL path, or .mp3 when the path has none.
func FileName(address string) string {
	ext := ".mp3"
	if u, err := url.Parse(address); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); audioExts[e] {
			ext = e
		}
	}
	return Key(address) + ext
}

// PathFor is the deterministic cache path of address.
func (c *Cache) PathFor(address string) string {
	return filepath.Join(c.dir, FileName(address))
}

// Resolve returns a local path for src.
func (c *Cache) Resolve(ctx context.Context, src soundpack.Source) (string, error) {
	switch src.Type {
	case soundpack.SourceFile:
		return c.resolveFile(src.Path)
	case soundpack.SourceURL:
		return c.resolveURL(ctx, src.URL)
	}
	return "", fmt.Errorf("unknown source type %q", src.Type)
}

func (c *Cache) resolveFile(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("%w: empty path", ErrNotFound)
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(c.baseDir, p)
	}
	fi, err := os.Stat(p)
	if err != nil || fi.IsDir() {
		metrics.CacheResolutions.WithLabelValues("error").Inc()
		return "", fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	metrics.CacheResolutions.WithLabelValues("file").Inc()
	return p, nil
}

func (c *Cache) resolveURL(ctx context.Context, address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: empty address", ErrDownloadFailed)
	}
	key := Key(address)
	final := c.PathFor(address)

	c.mu.Lock()
	if p, ok := c.resolved[key]; ok {
		c.mu.Unlock()
		if nonEmpty(p) {
			metrics.CacheResolutions.WithLabelValues("memory").Inc()
			return p, nil
		}
		// Removed from disk behind our back; forget it and fetch again.
		c.mu.Lock()
		if c.resolved[key] == p {
			delete(c.resolved, key)
		}
		c.mu.Unlock()
	} else if f, ok := c.downloading[key]; ok {
		c.mu.Unlock()
		return c.wait(ctx, f, "joined")
	} else {
		c.mu.Unlock()
	}

	if nonEmpty(final) {
		c.mu.Lock()
		if _, busy := c.downloading[key]; !busy {
			c.resolved[key] = final
		}
		c.mu.Unlock()
		metrics.CacheResolutions.WithLabelValues("disk").Inc()
		return final, nil
	}

	f, claimed := c.claim(key)
	if !claimed {
		return c.wait(ctx, f, "joined")
	}
	go c.download(f, key, address, final)
	return c.wait(ctx, f, "download")
}

// claim is the test-and-set: it returns the existing flight for key, a settled
// flight if key is already resolved, or a new flight owned by the caller.
func (c *Cache) claim(key string) (*flight, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.resolved[key]; ok {
		f := &flight{done: make(chan struct{}), path: p}
		close(f.done)
		return f, false
	}
	if f, ok := c.downloading[key]; ok {
		return f, false
	}
	f := &flight{done: make(chan struct{})}
	c.downloading[key] = f
	return f, true
}

// wait blocks on f. outcome labels the resolution: "download" for the caller
// that started the flight, "joined" for everyone else.
func (c *Cache) wait(ctx context.Context, f *flight, outcome string) (string, error) {
	select {
	case <-f.done:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	if f.err != nil {
		metrics.CacheResolutions.WithLabelValues("error").Inc()
		return "", f.err
	}
	metrics.CacheResolutions.WithLabelValues(outcome).Inc()
	return f.path, nil
}

func (c *Cache) download(f *flight, key, address, final string) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	err := c.fetchAtomically(ctx, address, final)

	c.mu.Lock()
	delete(c.downloading, key)
	if err == nil {
		c.resolved[key] = final
		f.path = final
	} else {
		f.err = fmt.Errorf("%w: %s: %v", ErrDownloadFailed, address, err)
	}
	c.mu.Unlock()
	close(f.done)

	metrics.DownloadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.Downloads.WithLabelValues("error").Inc()
		c.logger.Warn("download failed", "url", address, "err", err)
		return
	}
	metrics.Downloads.WithLabelValues("ok").Inc()
	c.logger.Info("download cached", "url", address, "path", final, "took", time.Since(start))
}

// fetchAtomically downloads into a temp file in the cache directory and
// renames it into place, so final never exists half-written.
func (c *Cache) fetchAtomically(ctx context.Context, address, final string) error {
	tmp, err := os.CreateTemp(c.dir, filepath.Base(final)+".part-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := c.dl.Fetch(ctx, address, tmpPath); err != nil {
		return err
	}
	if !nonEmpty(tmpPath) {
		return errors.New("downloader produced an empty file")
	}
	return os.Rename(tmpPath, final)
}

func nonEmpty(p string) bool {
	fi, err := os.Stat(p)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// Prewarm queues remote addresses for background download and returns how
// many were queued. Addresses already on disk cost one stat each.
func (c *Cache) Prewarm(addresses []string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0
	}
	queued := 0
	for _, a := range addresses {
		if c.prewarm.Submit(a) {
			queued++
			continue
		}
		metrics.PrewarmDropped.Inc()
		c.logger.Debug("prewarm queue full", "url", a)
	}
	return queued
}

func (c *Cache) prewarmOne(ctx context.Context, address string) {
	if _, err := c.resolveURL(ctx, address); err != nil && ctx.Err() == nil {
		c.logger.Warn("prewarm failed", "url", address, "err", err)
	}
}

// Stats is a point-in-time view of the cache state.
type Stats struct {
	Downloading     int `json:"downloading"`
	Resolved        int `json:"resolved"`
	PrewarmQueue    int `json:"prewarm_queue"`
	PrewarmCapacity int `json:"prewarm_capacity"`
}

// Stats reports the in-memory state.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Downloading:     len(c.downloading),
		Resolved:        len(c.resolved),
		PrewarmQueue:    c.prewarm.QueueLen(),
		PrewarmCapacity: c.prewarm.QueueCap(),
	}
}

// Close stops accepting pre-warm work and cancels downloads in flight.
func (c *Cache) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.prewarm.Drain()
}
