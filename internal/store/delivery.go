package store

import (
    "fmt"
    "time"
)

// WebhookDelivery is a queued outbound webhook call.
type WebhookDelivery struct {
    ID             string     `json:"id"`
    TenantID       string     `json:"tenantId"`
    SubscriptionID string     `json:"subscriptionId,omitempty"`
    EventType      string     `json:"eventType"`
    URL            string     `json:"url"`
    Secret         string     `json:"-"`
    Payload        []byte     `json:"-"`
    Status         string     `json:"status"`
    Attempts       int        `json:"attempts"`
    NextAttemptAt  *time.Time `json:"nextAttemptAt,omitempty"`
    LastError      string     `json:"lastError,omitempty"`
}

// Delivery statuses
const (
    DeliveryPending   = "pending"
    DeliveryRetry     = "retry"
    DeliveryDelivered = "delivered"
    DeliveryFailed    = "failed"
)

// AuditDescription is the text recorded for every saved run.
func AuditDescription(ordersFound, decisions int) string {
    return fmt.Sprintf("%d open orders were found. %d decisions were made.", ordersFound, decisions)
}
