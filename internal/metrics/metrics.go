// Package metrics exposes Prometheus counters for authentication and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records authentication outcomes and request metrics.
type Collector struct {
	logins        *prometheus.CounterVec
	signups       *prometheus.CounterVec
	tokensIssued  *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	reuseDetected prometheus.Counter
	oauthFailures *prometheus.CounterVec
	rateLimited   *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpLatency   prometheus.Histogram
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_auth_logins_total",
			Help: "Login attempts by method and outcome.",
		}, []string{"method", "outcome"}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_auth_signups_total",
			Help: "Signup attempts by outcome.",
		}, []string{"outcome"}),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_tokens_issued_total",
			Help: "Tokens issued by kind.",
		}, []string{"kind"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_token_refreshes_total",
			Help: "Refresh attempts by outcome.",
		}, []string{"outcome"}),
		reuseDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worknest_refresh_token_reuse_total",
			Help: "Rotated refresh tokens presented again.",
		}),
		oauthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_oauth_failures_total",
			Help: "Failed OAuth provider calls by provider and reason.",
		}, []string{"provider", "reason"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_rate_limited_total",
			Help: "Requests rejected by the rate limiter.",
		}, []string{"scope"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worknest_http_requests_total",
			Help: "HTTP responses by status code.",
		}, []string{"status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worknest_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.logins,
		c.signups,
		c.tokensIssued,
		c.refreshes,
		c.reuseDetected,
		c.oauthFailures,
		c.rateLimited,
		c.httpRequests,
		c.httpLatency,
	)

	return c
}

// RecordLogin counts a login attempt. method is "password", "google" or "github".
func (c *Collector) RecordLogin(method, outcome string) {
	c.logins.WithLabelValues(method, outcome).Inc()
}

// RecordSignup counts a signup attempt.
func (c *Collector) RecordSignup(outcome string) {
	c.signups.WithLabelValues(outcome).Inc()
}

// RecordTokenIssued counts a minted token.
func (c *Collector) RecordTokenIssued(kind string) {
	c.tokensIssued.WithLabelValues(kind).Inc()
}

// RecordRefresh counts a refresh attempt.
func (c *Collector) RecordRefresh(outcome string) {
	c.refreshes.WithLabelValues(outcome).Inc()
}

// RecordReuseDetected counts a replayed refresh token.
func (c *Collector) RecordReuseDetected() {
	c.reuseDetected.Inc()
}

// RecordOAuthFailure counts a failed provider call.
func (c *Collector) RecordOAuthFailure(provider, reason string) {
	c.oauthFailures.WithLabelValues(provider, reason).Inc()
}

// RecordRateLimited counts a rejected request.
func (c *Collector) RecordRateLimited(scope string) {
	c.rateLimited.WithLabelValues(scope).Inc()
}

// RecordHTTPRequest records the status and latency of a served request.
func (c *Collector) RecordHTTPRequest(statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(strconv.Itoa(statusCode)).Inc()
	c.httpLatency.Observe(duration.Seconds())
}

// Handler returns the HTTP handler for Prometheus scrapes.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
