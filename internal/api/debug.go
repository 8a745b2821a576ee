package api

import (
    "net/http"
    "time"

    "dcsourcing/internal/buildinfo"
)

// DebugJSON reports build, host and effective configuration without secrets.
func (s *Server) DebugJSON(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]any{
        "build":  buildinfo.Info(),
        "system": buildinfo.System(),
        "time":   time.Now().UTC().Format(time.RFC3339),
        "config": map[string]any{
            "port":               s.Cfg.Server.Port,
            "allowOrigins":       s.Cfg.Server.AllowOrigins,
            "rateRps":            s.Cfg.RateLimit.RPS,
            "rateBurst":          s.Cfg.RateLimit.Burst,
            "webhookMaxAttempts": s.Cfg.Webhooks.MaxAttempts,
            "solverNodeBudget":   s.Cfg.Solver.NodeBudget,
            "solverTimeBudgetMs": s.Cfg.Solver.TimeBudgetMs,
            "solverWorkers":      s.Cfg.Solver.Workers,
            "schedule":           s.Cfg.Sourcing.Schedule,
            "hasDatabaseUrl":     s.Cfg.Database.URL != "",
            "hasRedisUrl":        s.Cfg.Redis.URL != "",
        },
    })
}
