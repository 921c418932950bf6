// Package config loads process settings and the sound pack file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix namespaces environment overrides: SCOUTCUE_POLL_INTERVAL -> poll.interval.
const EnvPrefix = "SCOUTCUE_"

// Settings is the top-level process configuration.
type Settings struct {
	LiveClient LiveClientConf `koanf:"liveclient"`
	Poll       PollConf       `koanf:"poll"`
	Cache      CacheConf      `koanf:"cache"`
	Pack       PackConf       `koanf:"pack"`
	Audio      AudioConf      `koanf:"audio"`
	HTTP       HTTPConf       `koanf:"http"`
	Log        LogConf        `koanf:"log"`
	YtDlp      YtDlpConf      `koanf:"ytdlp"`
}

type LiveClientConf struct {
	BaseURL string        `koanf:"base_url"`
	Timeout time.Duration `koanf:"timeout"`
}

type PollConf struct {
	Interval   time.Duration `koanf:"interval"`
	WarnWindow time.Duration `koanf:"warn_window"`
}

type CacheConf struct {
	Dir            string `koanf:"dir"`
	PrewarmWorkers int    `koanf:"prewarm_workers"`
	PrewarmQueue   int    `koanf:"prewarm_queue"`
}

// PackConf locates the sound pack. Overrides map an event kind to a single
// source string that replaces that kind's default pool.
type PackConf struct {
	Path      string            `koanf:"path"`
	Overrides map[string]string `koanf:"overrides"`
}

type AudioConf struct {
	Sink           string `koanf:"sink"`
	StreamFallback bool   `koanf:"stream_fallback"`
	SampleRate     int    `koanf:"sample_rate"`
}

type HTTPConf struct {
	Addr string `koanf:"addr"`
}

type LogConf struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

type YtDlpConf struct {
	Path string `koanf:"path"`
}

// Defaults returns the settings used when neither file nor environment set a key.
func Defaults() *Settings {
	return &Settings{
		LiveClient: LiveClientConf{BaseURL: "https://127.0.0.1:2999", Timeout: 2 * time.Second},
		Poll:       PollConf{Interval: time.Second, WarnWindow: 30 * time.Second},
		Cache:      CacheConf{Dir: defaultCacheDir(), PrewarmWorkers: 2, PrewarmQueue: 64},
		Audio:      AudioConf{Sink: "speaker", StreamFallback: true, SampleRate: 44100},
		HTTP:       HTTPConf{Addr: "127.0.0.1:7878"},
		Log:        LogConf{Level: "info", Format: "text"},
		YtDlp:      YtDlpConf{Path: "yt-dlp"},
	}
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "scoutcue", "sounds")
}

// LoadSettings layers defaults, the optional YAML file at path and SCOUTCUE_*
// environment variables, in that order of precedence (last wins).
func LoadSettings(path string) (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load settings file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	s := &Settings{}
	if err := k.Unmarshal("", s); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// envKey maps SCOUTCUE_CACHE_PREWARM_WORKERS to cache.prewarm_workers. Section
// names never contain underscores, so only the first one separates. Override
// maps are the exception: SCOUTCUE_PACK_OVERRIDES_KILL sets pack.overrides.kill.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if kind, ok := strings.CutPrefix(key, "pack_overrides_"); ok {
		return "pack.overrides." + kind
	}
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return section
	}
	return section + "." + rest
}
