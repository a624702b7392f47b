package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RefreshRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsefeed_trending_refresh_runs_total",
		Help: "Total trending refresh runs",
	})
	RefreshErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsefeed_trending_refresh_errors_total",
		Help: "Total failed trending refresh runs",
	})
	RefreshDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsefeed_trending_refresh_duration_seconds",
		Help:    "Trending refresh duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	TrendingTopics = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pulsefeed_trending_topics",
		Help: "Topics produced by the last trending refresh",
	})
	FeedRankDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulsefeed_feed_rank_duration_seconds",
		Help:    "Feed ranking duration seconds",
		Buckets: prometheus.DefBuckets,
	})
	Interactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_interactions_total",
		Help: "Recorded interactions by kind",
	}, []string{"kind"})
	ArticlesCollected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pulsefeed_articles_collected_total",
		Help: "New articles stored by collection runs",
	})
	ContentFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_content_fetches_total",
		Help: "Article content fetch attempts by outcome",
	}, []string{"outcome"})
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pulsefeed_http_requests_total",
		Help: "HTTP requests by route and status code",
	}, []string{"route", "code"})
)

func init() {
	prometheus.MustRegister(
		RefreshRuns, RefreshErrors, RefreshDuration, TrendingTopics,
		FeedRankDuration, Interactions, ArticlesCollected, ContentFetches, HTTPRequests,
	)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRefreshDuration records a refresh run duration.
func ObserveRefreshDuration(start time.Time) {
	RefreshDuration.Observe(time.Since(start).Seconds())
}

// ObserveFeedRankDuration records how long one feed took to rank.
func ObserveFeedRankDuration(start time.Time) {
	FeedRankDuration.Observe(time.Since(start).Seconds())
}

// IncInteraction increments the interaction counter for a kind.
func IncInteraction(kind string) { Interactions.WithLabelValues(kind).Inc() }

// IncContentFetch increments the fetch counter for an outcome (fetched, failed, skipped).
func IncContentFetch(outcome string) { ContentFetches.WithLabelValues(outcome).Inc() }

// IncHTTPRequest counts one served request.
func IncHTTPRequest(route string, code int) {
	HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
