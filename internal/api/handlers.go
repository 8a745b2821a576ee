package api

import (
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "strings"
    "time"

    "dcsourcing/internal/model"
    "dcsourcing/internal/opt"
    "dcsourcing/internal/sourcing"
)

// OrdersHandler handles POST/GET /v1/orders
func (s *Server) OrdersHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req struct {
            TenantID string          `json:"tenantId"`
            Orders   []model.OrderIn `json:"orders"`
        }
        if !decodeJSON(w, r, &req) { return }
        req.TenantID = s.tenantFor(r, req.TenantID)
        if err := validateRows(req.Orders); err != nil { writeError(w, r, "Upsert orders", err); return }
        created, updated, err := s.Store.UpsertOrders(r.Context(), req.TenantID, req.Orders)
        if err != nil { writeError(w, r, "Upsert orders", err); return }
        writeJSON(w, http.StatusAccepted, map[string]int{"created": created, "updated": updated})
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        limit, err := queryLimit(r)
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
        status := r.URL.Query().Get("status")
        cursor := r.URL.Query().Get("cursor")
        items, next, err := s.Store.ListOrders(r.Context(), tenant, status, cursor, limit)
        if err != nil { writeError(w, r, "List orders", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// InventoriesHandler handles POST /v1/inventories
func (s *Server) InventoriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        TenantID    string              `json:"tenantId"`
        Inventories []model.InventoryIn `json:"inventories"`
    }
    if !decodeJSON(w, r, &req) { return }
    req.TenantID = s.tenantFor(r, req.TenantID)
    if err := validateRows(req.Inventories); err != nil { writeError(w, r, "Upsert inventories", err); return }
    n, err := s.Store.UpsertInventories(r.Context(), req.TenantID, req.Inventories)
    if err != nil { writeError(w, r, "Upsert inventories", err); return }
    writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
}

// LanesHandler handles POST /v1/lanes
func (s *Server) LanesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    var req struct {
        TenantID string         `json:"tenantId"`
        Lanes    []model.LaneIn `json:"lanes"`
    }
    if !decodeJSON(w, r, &req) { return }
    req.TenantID = s.tenantFor(r, req.TenantID)
    if err := validateRows(req.Lanes); err != nil { writeError(w, r, "Upsert lanes", err); return }
    n, err := s.Store.UpsertLanes(r.Context(), req.TenantID, req.Lanes)
    if err != nil { writeError(w, r, "Upsert lanes", err); return }
    writeJSON(w, http.StatusAccepted, map[string]int{"upserted": n})
}

// RunsHandler handles POST/GET /v1/sourcing/runs. POST solves synchronously
// and answers with the persisted run and its decisions.
func (s *Server) RunsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        _, tenant := s.withTenant(r)
        var req model.RunRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validate.Struct(req); err != nil { writeError(w, r, "Sourcing run", err); return }
        run, err := s.Sourcing.Run(r.Context(), tenant, sourcing.RunOptions{
            NodeBudget: req.NodeBudget,
            TimeBudget: time.Duration(req.TimeBudgetMs) * time.Millisecond,
            Workers:    req.Workers,
        })
        if err != nil { writeError(w, r, "Sourcing run", err); return }
        writeJSON(w, http.StatusCreated, run)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        limit, err := queryLimit(r)
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
        items, next, err := s.Store.ListRuns(r.Context(), tenant, r.URL.Query().Get("cursor"), limit)
        if err != nil { writeError(w, r, "List runs", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// RunByIDHandler handles GET /v1/sourcing/runs/{id} and /v1/sourcing/runs/{id}/decisions
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/sourcing/runs/"), "/")
    parts := strings.Split(rest, "/")
    switch {
    case len(parts) == 1 && parts[0] != "":
        run, err := s.Store.GetRun(r.Context(), tenant, parts[0])
        if err != nil { writeError(w, r, "Get run", err); return }
        writeJSON(w, http.StatusOK, run)
    case len(parts) == 2 && parts[1] == "decisions":
        items, err := s.Store.ListDecisions(r.Context(), tenant, parts[0])
        if err != nil { writeError(w, r, "List decisions", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items})
    default:
        writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
    }
}

// AuditLogHandler handles GET /v1/audit-log
func (s *Server) AuditLogHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    limit, err := queryLimit(r)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
    items, next, err := s.Store.ListAuditLog(r.Context(), tenant, r.URL.Query().Get("cursor"), limit)
    if err != nil { writeError(w, r, "List audit log", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) SubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if !decodeJSON(w, r, &req) { return }
        req.TenantID = s.tenantFor(r, req.TenantID)
        if err := validate.Struct(req); err != nil { writeError(w, r, "Create subscription", err); return }
        sub, err := s.Store.CreateSubscription(r.Context(), req)
        if err != nil { writeError(w, r, "Create subscription", err); return }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        _, tenant := s.withTenant(r)
        limit, err := queryLimit(r)
        if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
        items, next, err := s.Store.ListSubscriptions(r.Context(), tenant, r.URL.Query().Get("cursor"), limit)
        if err != nil { writeError(w, r, "List subscriptions", err); return }
        writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// Subscription delete
func (s *Server) SubscriptionByIDHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodDelete { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    id := strings.TrimPrefix(r.URL.Path, "/v1/subscriptions/")
    if id == "" { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if err := s.Store.DeleteSubscription(r.Context(), tenant, id); err != nil { writeError(w, r, "Delete subscription", err); return }
    w.WriteHeader(http.StatusNoContent)
}

// Admin: webhook deliveries list and retry
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    limit, err := queryLimit(r)
    if err != nil { writeProblem(w, http.StatusBadRequest, "Invalid limit", err.Error(), r.URL.Path); return }
    q := r.URL.Query()
    items, next, err := s.Store.ListWebhookDeliveries(r.Context(), tenant, q.Get("status"), q.Get("cursor"), limit)
    if err != nil { writeError(w, r, "List deliveries", err); return }
    writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasSuffix(r.URL.Path, "/retry") { writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path); return }
    if r.Method != http.MethodPost { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryWebhookDelivery(r.Context(), tenant, id); err != nil { writeError(w, r, "Retry delivery", err); return }
    writeJSON(w, http.StatusAccepted, map[string]int{"accepted": 1})
}

// RunMetricsHandler returns this process's search aggregates for a day
// (?day=YYYY-MM-DD, default today UTC) keyed by run status.
func (s *Server) RunMetricsHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodGet { w.WriteHeader(http.StatusMethodNotAllowed); return }
    _, tenant := s.withTenant(r)
    day := r.URL.Query().Get("day")
    if day == "" {
        day = time.Now().UTC().Format("2006-01-02")
    } else if _, err := time.Parse("2006-01-02", day); err != nil {
        writeProblem(w, http.StatusBadRequest, "Invalid day", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, http.StatusOK, map[string]any{"tenantId": tenant, "day": day, "byStatus": opt.GetMetrics(tenant, day)})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
    defer cancel()
    if err := s.Store.Ping(ctx); err != nil { writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path); return }
    writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
