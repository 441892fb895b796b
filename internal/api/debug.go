package api

import (
    "net/http"
    "time"

    "shelterroute/internal/buildinfo"
)

func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    info := map[string]any{
        "build": buildinfo.Info(),
        "time":  time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":             s.Config.Port,
            "rateRps":          s.Config.RateRPS,
            "rateBurst":        s.Config.RateBurst,
            "logLevel":         s.Config.LogLevel,
            "hasDatabaseUrl":   s.Config.DatabaseURL != "",
            "hasRedisUrl":      s.Config.RedisURL != "",
            "solverTimeBudget": s.Config.Solver.TimeBudget.String(),
            "solverWorkers":    s.Config.Solver.Workers,
            "authMode":         s.Auth.Mode,
            "requireToken":     s.Config.Auth.RequireToken,
            "webhookSigned":    s.Config.Webhook.Secret != "",
        },
    }
    writeJSON(w, http.StatusOK, info)
}
