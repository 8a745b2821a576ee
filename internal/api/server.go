package api

import (
    "context"
    "net/http"
    "strings"
    "sync"

    redis "github.com/redis/go-redis/v9"
    "github.com/rs/zerolog"
    "golang.org/x/time/rate"

    "dcsourcing/internal/auth"
    "dcsourcing/internal/config"
    "dcsourcing/internal/sourcing"
    "dcsourcing/internal/store"
    "dcsourcing/internal/webhooks"
)

type Server struct {
    Cfg      config.Config
    Log      zerolog.Logger
    Store    store.Store
    Pub      *webhooks.Publisher
    Auth     *auth.Verifier // nil when tenants come from X-Tenant-Id
    Broker   EventBroker
    Sourcing *sourcing.Service

    limMu    sync.Mutex
    limiters map[string]*rate.Limiter
}

// NewServer wires the store, broker and sourcing service from cfg. Without a
// database URL it runs on the in-memory store; without a Redis URL it uses
// the in-process broker and run lock.
func NewServer(cfg config.Config, log zerolog.Logger) (*Server, error) {
    var s store.Store
    if strings.TrimSpace(cfg.Database.URL) == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.Database.URL)
        if err != nil {
            return nil, err
        }
        if cfg.Database.Migrate {
            if err := sp.MigrateDir(cfg.Database.MigrationsDir); err != nil {
                log.Warn().Err(err).Str("dir", cfg.Database.MigrationsDir).Msg("migrations failed")
            }
        }
        s = sp
    }

    var broker EventBroker = NewBroker()
    var locker sourcing.Locker = sourcing.NewMemoryLocker()
    if cfg.Redis.URL != "" {
        opt, err := redis.ParseURL(cfg.Redis.URL)
        if err != nil {
            log.Warn().Err(err).Msg("invalid REDIS_URL, using in-process broker and lock")
        } else {
            rdb := redis.NewClient(opt)
            broker = NewRedisBroker(rdb)
            locker = sourcing.NewRedisLocker(rdb)
        }
    }

    pub := webhooks.NewPublisher(s, log)
    svc := sourcing.NewService(s, locker, log)
    svc.Defaults = sourcing.RunOptions{
        NodeBudget: cfg.Solver.NodeBudget,
        TimeBudget: cfg.TimeBudget(),
        Workers:    cfg.Solver.Workers,
    }
    svc.DefaultReward = cfg.Sourcing.DefaultReward
    svc.LockTTL = cfg.LockTTL()
    svc.Notifier = sourcing.Notifiers{brokerNotifier{broker}, pub}

    var verifier *auth.Verifier
    if m := cfg.Auth.Mode; m != "" && m != "none" {
        verifier = auth.NewVerifier(m, cfg.Auth.HMACSecret, cfg.Auth.JWKSURL, cfg.Auth.TenantClaim, cfg.Auth.RoleClaim)
    }

    return &Server{
        Cfg:      cfg,
        Log:      log,
        Store:    s,
        Pub:      pub,
        Auth:     verifier,
        Broker:   broker,
        Sourcing: svc,
        limiters: map[string]*rate.Limiter{},
    }, nil
}

func (s *Server) withTenant(r *http.Request) (context.Context, string) {
    tenant := r.Header.Get("X-Tenant-Id")
    if tenant == "" { tenant = s.Cfg.Server.DefaultTenant }
    if tenant == "" { tenant = "t_demo" }
    ctx := context.WithValue(r.Context(), ctxKeyTenant{}, tenant)
    return ctx, tenant
}

type ctxKeyTenant struct{}

// tenantFor picks the tenant for a request body that may name one. With
// token auth the authenticated tenant always wins.
func (s *Server) tenantFor(r *http.Request, fromBody string) string {
    if fromBody == "" || s.Auth != nil {
        _, tenant := s.withTenant(r)
        return tenant
    }
    return fromBody
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store, s.Cfg.Webhooks.MaxAttempts, s.Log)
}

// NewScheduler returns the cron scheduler for configured tenants, or nil
// when no schedule is set.
func (s *Server) NewScheduler() *sourcing.Scheduler {
    if s.Cfg.Sourcing.Schedule == "" {
        return nil
    }
    return sourcing.NewScheduler(s.Sourcing, s.Cfg.Sourcing.Schedule, s.Cfg.Sourcing.Tenants, s.Log)
}

// Routes registers every endpoint on a new mux.
func (s *Server) Routes() *http.ServeMux {
    mux := http.NewServeMux()

    // Ingestion
    mux.HandleFunc("/v1/orders", s.OrdersHandler)
    mux.HandleFunc("/v1/inventories", s.InventoriesHandler)
    mux.HandleFunc("/v1/lanes", s.LanesHandler)

    // Sourcing runs
    mux.HandleFunc("/v1/sourcing/runs", s.RunsHandler)
    mux.HandleFunc("/v1/sourcing/runs/", s.RunByIDHandler) // includes /decisions
    mux.HandleFunc("/v1/sourcing/stream", s.StreamHandler)
    mux.HandleFunc("/v1/audit-log", s.AuditLogHandler)

    // Subscriptions
    mux.HandleFunc("/v1/subscriptions", s.SubscriptionsHandler)
    mux.HandleFunc("/v1/subscriptions/", s.SubscriptionByIDHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", s.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", s.WebhookDeliveryRetryHandler)
    mux.HandleFunc("/v1/admin/run-metrics", s.RunMetricsHandler)

    // Health, metrics, docs
    mux.HandleFunc("/healthz", s.HealthHandler)
    mux.HandleFunc("/readyz", s.ReadyHandler)
    mux.Handle("/metrics", metricsHandler())
    mux.HandleFunc("/debug/info", s.DebugJSON)
    mux.HandleFunc("/openapi.yaml", s.OpenAPIHandler)
    mux.HandleFunc("/openapi.json", s.OpenAPIJSONHandler)
    mux.HandleFunc("/docs", s.DocsHandler)
    return mux
}

// Handler is the full middleware chain around Routes.
func (s *Server) Handler() http.Handler {
    return s.logMiddleware(s.corsMiddleware(s.authenticate(s.rateLimit(s.Routes()))))
}
