package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Polls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scoutcue_polls_total",
		Help: "Poll cycles, labelled by outcome (ok, unavailable).",
	}, []string{"outcome"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scoutcue_poll_cycle_duration_ms",
		Help:    "Duration of a full fetch-filter-decide-play cycle in milliseconds.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 10000},
	})

	EventsAdmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scoutcue_events_admitted_total",
		Help: "Events admitted as new by the watermark.",
	})

	EventsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scoutcue_events_malformed_total",
		Help: "Events skipped because they could not be decoded or resolved into a context.",
	})

	Watermark = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scoutcue_watermark",
		Help: "Highest event sequence id processed in the current session.",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scoutcue_decisions_total",
		Help: "Rule engine decisions, labelled by origin (rule, default, none).",
	}, []string{"origin"})

	CacheResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scoutcue_cache_resolutions_total",
		Help: "Media cache resolutions by outcome: memory, disk, download or joined.",
	}, []string{"outcome"})

	Downloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scoutcue_downloads_total",
		Help: "Remote source downloads, labelled by status (ok, error).",
	}, []string{"status"})

	DownloadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "scoutcue_download_duration_seconds",
		Help:    "Remote source download latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	PrewarmDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "scoutcue_prewarm_dropped_total",
		Help: "Pre-warm requests dropped because the queue was full.",
	})

	Playback = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scoutcue_playback_total",
		Help: "Playback attempts, labelled by status (ok, streamed, error).",
	}, []string{"status"})
)
