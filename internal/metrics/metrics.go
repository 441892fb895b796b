package metrics

import (
    "sync"
    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/collectors"
)

var (
    // Registry is the dedicated Prometheus registry for the API
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

    // Solves counts finished solves by outcome (ok, empty, invalid, failed) and stop reason
    Solves = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "solves_total", Help: "Route solves by outcome and stop reason."},
        []string{"outcome", "stop_reason"},
    )
    // SolveDuration tracks wall time per solve; the default budget is 30s
    SolveDuration = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "solve_duration_seconds", Help: "Route solve wall time in seconds.", Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60}},
    )
    // SolveImprovement is the relative gain of the search over construction
    SolveImprovement = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "solve_improvement_ratio", Help: "1 - best/initial objective.", Buckets: []float64{0, 0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.5}},
    )
    // SolveDistance records total route distance per solve
    SolveDistance = prometheus.NewHistogram(
        prometheus.HistogramOpts{Name: "solve_total_distance_km", Help: "Total route distance per solve in km.", Buckets: prometheus.ExponentialBuckets(1, 2, 12)},
    )
    // ActiveSolves is the number of solves in flight
    ActiveSolves = prometheus.NewGauge(prometheus.GaugeOpts{Name: "solves_in_flight", Help: "Route solves currently running."})

    // WebhookDeliveries counts solve callbacks by outcome (delivered, failed, dropped)
    WebhookDeliveries = prometheus.NewCounterVec(
        prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Solve callback deliveries by outcome."},
        []string{"outcome"},
    )
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
    regOnce.Do(func(){
        Registry.MustRegister(HTTPRequests)
        Registry.MustRegister(HTTPDuration)
        Registry.MustRegister(Solves)
        Registry.MustRegister(SolveDuration)
        Registry.MustRegister(SolveImprovement)
        Registry.MustRegister(SolveDistance)
        Registry.MustRegister(ActiveSolves)
        Registry.MustRegister(WebhookDeliveries)
        // Go/process collectors on our registry
        Registry.MustRegister(collectors.NewGoCollector())
        Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
    })
}

var regOnce sync.Once
