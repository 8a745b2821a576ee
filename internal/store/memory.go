package store

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/google/uuid"
    "dcsourcing/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
    mu     sync.Mutex
    orders map[string]map[string]model.OpenOrder // tenant -> order number -> order
    inv    map[string]map[[2]string]int          // tenant -> (location, material) -> position
    lanes  map[string]map[[2]string]float64      // tenant -> (origin, destination) -> travel time
    runs   map[string]model.Run                  // run id -> run
    runsTen map[string][]string                  // tenant -> run ids, insertion order
    decisions map[string][]model.Decision        // run id -> decisions
    audit  map[string][]model.AuditEntry         // tenant -> log
    subs   map[string][]model.Subscription       // tenant -> subscriptions
    // Webhooks queue state
    deliveries map[string]*memDelivery           // id -> delivery state
    deliveryIDs []string                         // enqueue order
}

func NewMemory() *Memory {
    return &Memory{
        orders: map[string]map[string]model.OpenOrder{},
        inv: map[string]map[[2]string]int{},
        lanes: map[string]map[[2]string]float64{},
        runs: map[string]model.Run{},
        runsTen: map[string][]string{},
        decisions: map[string][]model.Decision{},
        audit: map[string][]model.AuditEntry{},
        subs: map[string][]model.Subscription{},
        deliveries: map[string]*memDelivery{},
    }
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
    WebhookDelivery
    NextAttemptAt time.Time
    ResponseCode  int
    LatencyMs     int
    DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return nil }

func (m *Memory) UpsertOrders(ctx context.Context, tenantID string, orders []model.OrderIn) (int, int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    byNum := m.orders[tenantID]
    if byNum == nil { byNum = map[string]model.OpenOrder{}; m.orders[tenantID] = byNum }
    created, updated := 0, 0
    for _, o := range orders {
        cur, exists := byNum[o.OrderNumber]
        if exists { updated++ } else { created++; cur.Status = model.OrderOpen }
        cur.TenantID = tenantID
        cur.OrderNumber = o.OrderNumber
        cur.Destination = o.Destination
        cur.Material = o.Material
        cur.Quantity = o.Quantity
        cur.DueDate = o.DueDate
        cur.Reward = o.Reward
        byNum[o.OrderNumber] = cur
    }
    return created, updated, nil
}

func (m *Memory) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.OpenOrder, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    nums := m.orderNumbers(tenantID)
    if limit <= 0 { limit = 100 }
    out := []model.OpenOrder{}
    var next string
    for _, n := range nums {
        if cursor != "" && n <= cursor { continue }
        o := m.orders[tenantID][n]
        if status != "" && o.Status != status { continue }
        if len(out) == limit { next = out[len(out)-1].OrderNumber; break }
        out = append(out, o)
    }
    return out, next, nil
}

func (m *Memory) orderNumbers(tenantID string) []string {
    nums := make([]string, 0, len(m.orders[tenantID]))
    for n := range m.orders[tenantID] { nums = append(nums, n) }
    sort.Strings(nums)
    return nums
}

func (m *Memory) UpsertInventories(ctx context.Context, tenantID string, rows []model.InventoryIn) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    inv := m.inv[tenantID]
    if inv == nil { inv = map[[2]string]int{}; m.inv[tenantID] = inv }
    for _, r := range rows { inv[[2]string{r.Location, r.Material}] = r.Position }
    return len(rows), nil
}

func (m *Memory) UpsertLanes(ctx context.Context, tenantID string, rows []model.LaneIn) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    lanes := m.lanes[tenantID]
    if lanes == nil { lanes = map[[2]string]float64{}; m.lanes[tenantID] = lanes }
    for _, r := range rows { lanes[[2]string{r.Origin, r.Destination}] = r.ExpectedTravelTime }
    return len(rows), nil
}

func (m *Memory) FetchCandidates(ctx context.Context, tenantID string) ([]model.Candidate, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    // lanes by destination, origins ascending
    byDest := map[string][]string{}
    for k := range m.lanes[tenantID] { byDest[k[1]] = append(byDest[k[1]], k[0]) }
    for _, origins := range byDest { sort.Strings(origins) }

    out := []model.Candidate{}
    for _, n := range m.orderNumbers(tenantID) {
        o := m.orders[tenantID][n]
        if o.Status != model.OrderOpen { continue }
        for _, origin := range byDest[o.Destination] {
            pos, ok := m.inv[tenantID][[2]string{origin, o.Material}]
            if !ok { continue }
            out = append(out, model.Candidate{
                OrderNumber: o.OrderNumber, Destination: o.Destination, Material: o.Material,
                Quantity: o.Quantity, DueDate: o.DueDate, Reward: o.Reward,
                Origin: origin, Position: pos, TravelTime: m.lanes[tenantID][[2]string{origin, o.Destination}],
            })
        }
    }
    return out, nil
}

func (m *Memory) SaveRun(ctx context.Context, run model.Run, decisions []model.Decision) error {
    m.mu.Lock(); defer m.mu.Unlock()
    run.Decisions = nil
    m.runs[run.ID] = run
    m.runsTen[run.TenantID] = append(m.runsTen[run.TenantID], run.ID)
    m.decisions[run.ID] = append([]model.Decision(nil), decisions...)
    decided := run.DecidedAt
    for _, d := range decisions {
        if !d.Assigned { continue }
        o, ok := m.orders[run.TenantID][d.OrderNumber]
        if !ok { continue }
        o.OriginLocation = d.Origin
        o.PlannedShipDate = &decided
        o.Status = model.OrderSourced
        m.orders[run.TenantID][d.OrderNumber] = o
    }
    m.audit[run.TenantID] = append(m.audit[run.TenantID], model.AuditEntry{
        ID: uuid.New().String(), TenantID: run.TenantID, Program: AuditProgram, EventType: AuditEventType,
        Description: AuditDescription(run.OrdersFound, run.Assigned), TS: run.DecidedAt,
    })
    return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[runID]
    if !ok || r.TenantID != tenantID { return model.Run{}, ErrNotFound }
    return r, nil
}

// ListRuns returns newest first; the cursor is the last run id of the previous page.
func (m *Memory) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    ids := m.runsTen[tenantID]
    if limit <= 0 { limit = 100 }
    start := len(ids) - 1
    if cursor != "" {
        for i := range ids { if ids[i] == cursor { start = i - 1; break } }
    }
    out := []model.Run{}
    next := ""
    for i := start; i >= 0; i-- {
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, m.runs[ids[i]])
    }
    return out, next, nil
}

func (m *Memory) ListDecisions(ctx context.Context, tenantID, runID string) ([]model.Decision, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    r, ok := m.runs[runID]
    if !ok || r.TenantID != tenantID { return nil, ErrNotFound }
    return append([]model.Decision{}, m.decisions[runID]...), nil
}

// ListAuditLog returns newest first.
func (m *Memory) ListAuditLog(ctx context.Context, tenantID, cursor string, limit int) ([]model.AuditEntry, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    log := m.audit[tenantID]
    if limit <= 0 { limit = 100 }
    start := len(log) - 1
    if cursor != "" {
        for i := range log { if log[i].ID == cursor { start = i - 1; break } }
    }
    out := []model.AuditEntry{}
    next := ""
    for i := start; i >= 0; i-- {
        if len(out) == limit { next = out[len(out)-1].ID; break }
        out = append(out, log[i])
    }
    return out, next, nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
    m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
    return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    var out []model.Subscription
    for _, s := range m.subs[tenantID] {
        for _, e := range s.Events { if e == eventType { out = append(out, s); break } }
    }
    return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    list := m.subs[tenantID]
    start := 0
    if cursor != "" {
        for i := range list { if list[i].ID == cursor { start = i+1; break } }
    }
    if limit <= 0 { limit = 100 }
    end := start + limit
    if end > len(list) { end = len(list) }
    items := append([]model.Subscription{}, list[start:end]...)
    next := ""
    if end < len(list) { next = list[end-1].ID }
    return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    arr := m.subs[tenantID]
    out := make([]model.Subscription, 0, len(arr))
    for _, s := range arr { if s.ID != id { out = append(out, s) } }
    if len(out) == len(arr) { return ErrNotFound }
    m.subs[tenantID] = out
    return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    dk := computeDedupKey(payload)
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if d.TenantID == tenantID && d.EventType == eventType && d.URL == url && computeDedupKey(d.Payload) == dk {
            return d.ID, nil
        }
    }
    id := uuid.New().String()
    d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: time.Now()}
    m.deliveries[id] = d
    m.deliveryIDs = append(m.deliveryIDs, id)
    return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    now := time.Now()
    out := []WebhookDelivery{}
    for _, id := range m.deliveryIDs {
        d := m.deliveries[id]
        if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
            out = append(out, d.WebhookDelivery)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    if success {
        d.Status = DeliveryDelivered
        now := time.Now()
        d.DeliveredAt = &now
    } else {
        d.Status = DeliveryRetry
        d.LastError = lastError
        if nextAttemptAt != nil { d.NextAttemptAt = *nextAttemptAt } else { d.NextAttemptAt = time.Now().Add(1 * time.Minute) }
    }
    return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    d.Attempts++
    d.Status = DeliveryFailed
    d.LastError = lastError
    d.ResponseCode = responseCode
    d.LatencyMs = latencyMs
    return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 { limit = 100 }
    out := []WebhookDelivery{}
    started := cursor == ""
    next := ""
    for _, id := range m.deliveryIDs {
        if !started { started = id == cursor; continue }
        d := m.deliveries[id]
        if d.TenantID != tenantID || (status != "" && d.Status != status) { continue }
        if len(out) == limit { next = out[len(out)-1].ID; break }
        item := d.WebhookDelivery
        if !d.NextAttemptAt.IsZero() { t := d.NextAttemptAt; item.NextAttemptAt = &t }
        out = append(out, item)
    }
    return out, next, nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil || d.TenantID != tenantID { return ErrNotFound }
    d.Status = DeliveryPending
    d.NextAttemptAt = time.Now()
    return nil
}

var _ Store = (*Memory)(nil)
