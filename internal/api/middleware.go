package api

import (
    "bufio"
    "errors"
    "net"
    "net/http"
    "strconv"
    "strings"
    "time"

    "golang.org/x/time/rate"

    "dcsourcing/internal/metrics"
)

func metricsHandler() http.Handler { return metrics.Handler() }

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (r *statusRecorder) WriteHeader(code int) {
    r.status = code
    r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
    h, ok := r.ResponseWriter.(http.Hijacker)
    if !ok { return nil, nil, errors.New("response writer does not support hijacking") }
    r.status = http.StatusSwitchingProtocols
    return h.Hijack()
}

func (r *statusRecorder) Flush() {
    if f, ok := r.ResponseWriter.(http.Flusher); ok { f.Flush() }
}

// routeLabel collapses ids out of the path so metric labels stay bounded.
func routeLabel(path string) string {
    switch {
    case strings.HasPrefix(path, "/v1/sourcing/runs/"):
        if strings.HasSuffix(path, "/decisions") { return "/v1/sourcing/runs/{id}/decisions" }
        return "/v1/sourcing/runs/{id}"
    case strings.HasPrefix(path, "/v1/subscriptions/"):
        return "/v1/subscriptions/{id}"
    case strings.HasPrefix(path, "/v1/admin/webhook-deliveries/"):
        return "/v1/admin/webhook-deliveries/{id}/retry"
    }
    return path
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        next.ServeHTTP(rec, r)
        dur := time.Since(start)
        route := routeLabel(r.URL.Path)
        code := strconv.Itoa(rec.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, route, code).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, route, code).Observe(dur.Seconds())
        s.Log.Debug().
            Str("remote", r.RemoteAddr).
            Str("method", r.Method).
            Str("path", r.URL.Path).
            Int("status", rec.status).
            Dur("duration", dur).
            Msg("request")
    })
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
    allowed := map[string]bool{}
    for _, o := range s.Cfg.Server.AllowOrigins { allowed[o] = true }
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        origin := r.Header.Get("Origin")
        if origin != "" && (allowed["*"] || allowed[origin]) {
            w.Header().Set("Access-Control-Allow-Origin", origin)
            w.Header().Set("Vary", "Origin")
            w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Tenant-Id")
            w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
            if r.Method == http.MethodOptions {
                w.WriteHeader(http.StatusNoContent)
                return
            }
        }
        next.ServeHTTP(w, r)
    })
}

// rateLimit applies a token bucket per tenant. Probes and scrapes are exempt.
func (s *Server) rateLimit(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        switch r.URL.Path {
        case "/healthz", "/readyz", "/metrics":
            next.ServeHTTP(w, r)
            return
        }
        _, tenant := s.withTenant(r)
        if !s.limiter(tenant).Allow() {
            metrics.HTTPRateLimited.WithLabelValues(tenant).Inc()
            w.Header().Set("Retry-After", "1")
            writeProblem(w, http.StatusTooManyRequests, "Too Many Requests", "rate limit exceeded for tenant "+tenant, r.URL.Path)
            return
        }
        next.ServeHTTP(w, r)
    })
}

func (s *Server) limiter(tenant string) *rate.Limiter {
    s.limMu.Lock()
    defer s.limMu.Unlock()
    l := s.limiters[tenant]
    if l == nil {
        rps, burst := s.Cfg.RateLimit.RPS, s.Cfg.RateLimit.Burst
        if rps <= 0 { rps = 20 }
        if burst <= 0 { burst = 40 }
        l = rate.NewLimiter(rate.Limit(rps), burst)
        s.limiters[tenant] = l
    }
    return l
}
