package store

import (
    "context"
    "errors"
    "time"

    "dcsourcing/internal/model"
)

// Store is the persistence interface used by the API server and the
// sourcing service. It is both the instance source (ingestion tables and
// FetchCandidates) and the result sink (SaveRun).
type Store interface {
    // Ingestion
    UpsertOrders(ctx context.Context, tenantID string, orders []model.OrderIn) (created, updated int, err error)
    ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) (items []model.OpenOrder, nextCursor string, err error)
    UpsertInventories(ctx context.Context, tenantID string, rows []model.InventoryIn) (int, error)
    UpsertLanes(ctx context.Context, tenantID string, rows []model.LaneIn) (int, error)

    // Instance source: open orders joined with lanes on destination and
    // inventories on (origin, material).
    FetchCandidates(ctx context.Context, tenantID string) ([]model.Candidate, error)

    // Result sink. SaveRun writes the run, its decisions, the order
    // write-back and the audit entry atomically.
    SaveRun(ctx context.Context, run model.Run, decisions []model.Decision) error
    GetRun(ctx context.Context, tenantID, runID string) (model.Run, error)
    ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error)
    ListDecisions(ctx context.Context, tenantID, runID string) ([]model.Decision, error)
    ListAuditLog(ctx context.Context, tenantID, cursor string, limit int) ([]model.AuditEntry, string, error)

    // Subscriptions
    CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
    GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
    ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
    DeleteSubscription(ctx context.Context, tenantID, id string) error

    // Webhook deliveries
    EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
    FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
    MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
    FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
    ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error)
    RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

    Ping(ctx context.Context) error
}

var ErrNotFound = errors.New("not found")

// AuditProgram and AuditEventType tag audit rows written by SaveRun.
const (
    AuditProgram   = "dcsourcing"
    AuditEventType = "Optimization"
)
