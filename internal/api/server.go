package api

import (
    "net/http"
    "sync"

    "github.com/prometheus/client_golang/prometheus/promhttp"
    "github.com/sirupsen/logrus"
    "golang.org/x/time/rate"

    "shelterroute/internal/auth"
    "shelterroute/internal/config"
    "shelterroute/internal/events"
    "shelterroute/internal/metrics"
    "shelterroute/internal/planner"
    "shelterroute/internal/store"
)

type Server struct {
    Store   store.Store
    Planner *planner.Planner
    Broker  events.EventBroker
    Log     logrus.FieldLogger
    Config  config.Config
    Auth    *auth.Verifier

    limits *tenantLimiter
}

// NewServer wires the planner over st and broker. Choosing the store and
// broker implementations is left to the caller.
func NewServer(cfg config.Config, st store.Store, broker events.EventBroker, log logrus.FieldLogger) (*Server, error) {
    v, err := auth.NewVerifier(cfg.Auth.Mode, cfg.Auth.HMACSecret, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim)
    if err != nil {
        return nil, err
    }
    return &Server{
        Store:   st,
        Planner: planner.New(st, broker, cfg.Solver, log),
        Broker:  broker,
        Log:     log,
        Config:  cfg,
        Auth:    v,
        limits:  newTenantLimiter(cfg.RateRPS, cfg.RateBurst),
    }, nil
}

// Routes builds the HTTP handler tree.
func (s *Server) Routes() http.Handler {
    mux := http.NewServeMux()

    // Solving
    mux.HandleFunc("/v1/solve", s.SolveHandler)
    mux.HandleFunc("/v1/solves/", s.SolveEventsHandler) // /v1/solves/{id}/events
    mux.HandleFunc("/v1/ws", s.WSHandler)

    // Shelter catalog
    mux.HandleFunc("/v1/shelters", s.SheltersHandler)
    mux.HandleFunc("/v1/shelters/districts", s.DistrictsHandler)

    // Solver settings
    mux.HandleFunc("/v1/solver/config", s.SolverConfigHandler)
    mux.HandleFunc("/v1/admin/solver/config", s.AdminSolverConfigHandler)
    mux.HandleFunc("/v1/admin/solve-stats", s.SolveStatsHandler)

    // Ops
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    metrics.RegisterDefault()
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    return s.logMiddleware(mux)
}

// tenantLimiter hands out one token bucket per tenant.
type tenantLimiter struct {
    mu    sync.Mutex
    limit rate.Limit
    burst int
    m     map[string]*rate.Limiter
}

func newTenantLimiter(rps float64, burst int) *tenantLimiter {
    l := rate.Limit(rps)
    if rps <= 0 { l = rate.Inf }
    if burst <= 0 { burst = 1 }
    return &tenantLimiter{limit: l, burst: burst, m: map[string]*rate.Limiter{}}
}

func (t *tenantLimiter) Allow(tenant string) bool {
    t.mu.Lock()
    lim, ok := t.m[tenant]
    if !ok {
        lim = rate.NewLimiter(t.limit, t.burst)
        t.m[tenant] = lim
    }
    t.mu.Unlock()
    return lim.Allow()
}
