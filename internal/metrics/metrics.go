package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "route", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postdispatch_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "code"},
	)

	// Dispatch
	dispatchRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_runs_total",
			Help: "Dispatch runs by result.",
		},
		[]string{"result"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "postdispatch_run_duration_seconds",
			Help:    "Wall time of one dispatch run.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	postsClaimed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_posts_claimed_total",
			Help: "Claim attempts on due posts by result.",
		},
		[]string{"result"},
	)
	postsFinalized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_posts_finalized_total",
			Help: "Posts that reached a terminal status.",
		},
		[]string{"status"},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_publishes_total",
			Help: "Per-platform publish outcomes.",
		},
		[]string{"platform", "outcome"},
	)
	publishDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "postdispatch_publish_duration_seconds",
			Help:    "Time spent publishing to one platform, retries included.",
			Buckets: []float64{0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"platform"},
	)
	publishRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_publish_retries_total",
			Help: "Publish attempts retried after a transient failure.",
		},
		[]string{"platform"},
	)
	tokenRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_token_refreshes_total",
			Help: "Token refresh calls by platform and result.",
		},
		[]string{"platform", "result"},
	)
	unrecordedPublications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postdispatch_unrecorded_publications_total",
			Help: "Outcomes that could not be written to the database and were journaled.",
		},
		[]string{"platform"},
	)
	journalDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "postdispatch_outcome_journal_depth",
			Help: "Outcomes waiting in the journal for reconciliation.",
		},
	)
)

var registerOnce sync.Once

func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			httpDuration,

			dispatchRuns,
			dispatchDuration,
			postsClaimed,
			postsFinalized,
			publishes,
			publishDuration,
			publishRetries,
			tokenRefreshes,
			unrecordedPublications,
			journalDepth,
		)
	})
}

func Handler() http.Handler {
	return promhttp.Handler()
}

// --- HTTP ---
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	c := strconv.Itoa(code)
	httpRequests.WithLabelValues(method, route, c).Inc()
	httpDuration.WithLabelValues(method, route, c).Observe(d.Seconds())
}

// --- Dispatch ---
func ObserveDispatchRun(result string, d time.Duration) {
	dispatchRuns.WithLabelValues(result).Inc()
	dispatchDuration.Observe(d.Seconds())
}
func IncClaim(result string)          { postsClaimed.WithLabelValues(result).Inc() }
func IncFinalized(status string)      { postsFinalized.WithLabelValues(status).Inc() }
func IncPublishRetry(platform string) { publishRetries.WithLabelValues(platform).Inc() }
func ObservePublish(platform, outcome string, d time.Duration) {
	publishes.WithLabelValues(platform, outcome).Inc()
	publishDuration.WithLabelValues(platform).Observe(d.Seconds())
}

// --- Tokens ---
func IncTokenRefresh(platform, result string) {
	tokenRefreshes.WithLabelValues(platform, result).Inc()
}

// --- Recording ---
func IncUnrecordedPublication(platform string) {
	unrecordedPublications.WithLabelValues(platform).Inc()
}
func SetJournalDepth(n int64) {
	if n < 0 {
		n = 0
	}
	journalDepth.Set(float64(n))
}
