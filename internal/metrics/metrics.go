package metrics

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    // Registry is the dedicated Prometheus registry for the service
    Registry = prometheus.NewRegistry()
    // HTTPRequests counts requests by method, path, and status
    HTTPRequests = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
        []string{"method", "path", "status"},
    )
    // HTTPDuration records request durations in seconds
    HTTPDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
        []string{"method", "path", "status"},
    )
    // HTTPRateLimited counts requests rejected by the tenant rate limiter
    HTTPRateLimited = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "http_rate_limited_total", Help: "Requests rejected by the rate limiter."},
        []string{"tenant"},
    )

    // SourcingRuns counts completed sourcing runs by solver status
    SourcingRuns = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "sourcing_runs_total", Help: "Sourcing runs by solver status."},
        []string{"status"},
    )
    // SourcingErrors counts runs that aborted before persisting
    SourcingErrors = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "sourcing_run_errors_total", Help: "Sourcing runs aborted by stage."},
        []string{"stage"},
    )
    SolveSeconds = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "sourcing_solve_seconds", Help: "Branch-and-bound wall time in seconds.", Buckets: prometheus.ExponentialBuckets(0.001, 4, 10)},
    )
    NodesExplored = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "sourcing_nodes_explored", Help: "Search nodes entered per run.", Buckets: prometheus.ExponentialBuckets(1, 10, 9)},
    )
    // Objective is the objective of the last run per tenant
    Objective = prometheus.NewGaugeVec(
        prometheus.GaugeOpts{Name: "sourcing_objective", Help: "Objective of the last sourcing run."},
        []string{"tenant"},
    )

    // WebhookDeliveries counts webhook delivery outcomes by event type and status
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Webhook deliveries by event type and status."},
        []string{"event_type", "status"},
    )
    // WebhookLatency tracks webhook delivery latencies in milliseconds
    WebhookLatency = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{Name: "webhook_delivery_latency_ms", Help: "Webhook delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000}},
        []string{"event_type", "status"},
    )
)

// RegisterDefault registers all collectors on Registry. Safe to call more than once.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests, HTTPDuration, HTTPRateLimited)
        Registry.MustRegister(SourcingRuns, SourcingErrors, SolveSeconds, NodesExplored, Objective)
        Registry.MustRegister(WebhookDeliveries, WebhookLatency)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
    RegisterDefault()
    return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
