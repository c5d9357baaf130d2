// Package metrics defines the Prometheus collectors exported by the server.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the application collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted       prometheus.Counter
	sessionsEnded         *prometheus.CounterVec
	terminalRejected      prometheus.Counter
	statsUpdates          *prometheus.CounterVec
	statsDropped          *prometheus.CounterVec
	achievementsUnlocked  *prometheus.CounterVec
	recomputeDuration     prometheus.Histogram
	recomputeFailures     prometheus.Counter
	leaderboardCacheReads *prometheus.CounterVec
	wsClients             prometheus.Gauge
}

// New registers the application collectors plus the Go runtime and process
// collectors on a fresh registry
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilevania_sessions_started_total",
			Help: "Total number of play sessions started",
		}),
		sessionsEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilevania_sessions_ended_total",
			Help: "Total number of play sessions ended, by terminal status",
		}, []string{"status"}),
		terminalRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilevania_session_terminal_rejections_total",
			Help: "Updates or ends refused because the session was already terminal",
		}),
		statsUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilevania_session_stats_updates_total",
			Help: "Total number of in-session stats updates applied, by transport",
		}, []string{"source"}),
		statsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilevania_session_stats_dropped_total",
			Help: "Total number of in-session stats updates dropped, by transport",
		}, []string{"source"}),
		achievementsUnlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilevania_achievements_unlocked_total",
			Help: "Total number of achievement unlocks, by rarity",
		}, []string{"rarity"}),
		recomputeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tilevania_leaderboard_recompute_seconds",
			Help:    "Duration of leaderboard recomputes",
			Buckets: prometheus.DefBuckets,
		}),
		recomputeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tilevania_leaderboard_recompute_failures_total",
			Help: "Total number of failed leaderboard recomputes",
		}),
		leaderboardCacheReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tilevania_leaderboard_cache_reads_total",
			Help: "Leaderboard reads served by the cache, by result",
		}, []string{"result"}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tilevania_websocket_clients",
			Help: "Number of connected websocket clients",
		}),
	}

	registry.MustRegister(
		m.sessionsStarted,
		m.sessionsEnded,
		m.terminalRejected,
		m.statsUpdates,
		m.statsDropped,
		m.achievementsUnlocked,
		m.recomputeDuration,
		m.recomputeFailures,
		m.leaderboardCacheReads,
		m.wsClients,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) SessionEnded(status string) {
	if m == nil {
		return
	}
	m.sessionsEnded.WithLabelValues(status).Inc()
}

// StatsUpdated counts an update received over "http" or "kafka"
func (m *Metrics) StatsUpdated(source string) {
	if m == nil {
		return
	}
	m.statsUpdates.WithLabelValues(source).Inc()
}

// StatsDropped counts an update that was superseded or refused
func (m *Metrics) StatsDropped(source string) {
	if m == nil {
		return
	}
	m.statsDropped.WithLabelValues(source).Inc()
}

func (m *Metrics) TerminalRejected() {
	if m == nil {
		return
	}
	m.terminalRejected.Inc()
}

func (m *Metrics) AchievementUnlocked(rarity string) {
	if m == nil {
		return
	}
	m.achievementsUnlocked.WithLabelValues(rarity).Inc()
}

// RecomputeFinished records one recompute attempt
func (m *Metrics) RecomputeFinished(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.recomputeFailures.Inc()
		return
	}
	m.recomputeDuration.Observe(elapsed.Seconds())
}

// CacheRead counts a leaderboard read as a "hit", "miss" or "error"
func (m *Metrics) CacheRead(result string) {
	if m == nil {
		return
	}
	m.leaderboardCacheReads.WithLabelValues(result).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}
