package audio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
	"github.com/gopxl/beep/flac"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/speaker"
	"github.com/gopxl/beep/vorbis"
	"github.com/gopxl/beep/wav"
)

const defaultSampleRate = 44100

// SpeakerSink plays through the default output device. All sounds share one
// speaker mixer, so overlapping events overlap audibly.
type SpeakerSink struct {
	rate   beep.SampleRate
	logger *slog.Logger
	client *http.Client

	once    sync.Once
	initErr error
}

// NewSpeakerSink opens nothing until the first Play.
func NewSpeakerSink(sampleRate int, logger *slog.Logger) *SpeakerSink {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SpeakerSink{
		rate:   beep.SampleRate(sampleRate),
		logger: logger,
		client: &http.Client{},
	}
}

func (s *SpeakerSink) init() error {
	s.once.Do(func() {
		s.initErr = speaker.Init(s.rate, s.rate.N(time.Second/10))
		if s.initErr != nil {
			s.initErr = fmt.Errorf("open audio device: %w", s.initErr)
		}
	})
	return s.initErr
}

func (s *SpeakerSink) Play(_ context.Context, p string, volume float64) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	st, format, err := decode(formatOf(filepath.Ext(p)), f)
	if err != nil {
		f.Close()
		return fmt.Errorf("decode %s: %w", p, err)
	}
	return s.queue(st, format, volume)
}

// PlayURL streams a remote audio file without caching it. The request outlives
// ctx because playback continues after PlayURL returns.
func (s *SpeakerSink) PlayURL(ctx context.Context, address string, volume float64) error {
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, address, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return fmt.Errorf("stream %s: status %d", address, resp.StatusCode)
	}
	kind := formatOfContentType(resp.Header.Get("Content-Type"))
	if kind == "" {
		if u, err := url.Parse(address); err == nil {
			kind = formatOf(path.Ext(u.Path))
		}
	}
	st, format, err := decode(kind, resp.Body)
	if err != nil {
		resp.Body.Close()
		return fmt.Errorf("decode stream %s: %w", address, err)
	}
	return s.queue(st, format, volume)
}

func (s *SpeakerSink) queue(st beep.StreamSeekCloser, format beep.Format, volume float64) error {
	if err := s.init(); err != nil {
		st.Close()
		return err
	}
	var src beep.Streamer = st
	if format.SampleRate != s.rate {
		src = beep.Resample(4, format.SampleRate, s.rate, src)
	}
	exp, silent := gain(volume)
	vol := &effects.Volume{Streamer: src, Base: 2, Volume: exp, Silent: silent}
	speaker.Play(beep.Seq(vol, beep.Callback(func() {
		if err := st.Close(); err != nil {
			s.logger.Debug("close stream", "err", err)
		}
	})))
	return nil
}

// gain converts a linear volume into the base-2 exponent effects.Volume expects.
func gain(volume float64) (exp float64, silent bool) {
	if volume <= 0 || math.IsNaN(volume) {
		return 0, true
	}
	return math.Log2(volume), false
}

func formatOf(ext string) string {
	switch strings.ToLower(ext) {
	case ".wav":
		return "wav"
	case ".ogg", ".oga":
		return "ogg"
	case ".flac":
		return "flac"
	case ".mp3":
		return "mp3"
	}
	return ""
}

func formatOfContentType(ct string) string {
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ""
	}
	switch mt {
	case "audio/mpeg", "audio/mp3":
		return "mp3"
	case "audio/ogg", "audio/vorbis", "application/ogg":
		return "ogg"
	case "audio/wav", "audio/x-wav", "audio/wave":
		return "wav"
	case "audio/flac", "audio/x-flac":
		return "flac"
	}
	return ""
}

// decode picks a decoder by format name; unknown formats are tried as mp3,
// which is what the video-site downloader produces.
func decode(kind string, rc io.ReadCloser) (beep.StreamSeekCloser, beep.Format, error) {
	switch kind {
	case "wav":
		return wav.Decode(rc)
	case "ogg":
		return vorbis.Decode(rc)
	case "flac":
		return flac.Decode(rc)
	default:
		return mp3.Decode(rc)
	}
}
