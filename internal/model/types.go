package model

import "time"

// Ingestion rows. These mirror the three tables the sourcing job reads.

type OrderIn struct {
    OrderNumber string     `json:"orderNumber" validate:"required,max=64"`
    Destination string     `json:"destination" validate:"required,max=128"`
    Material    string     `json:"material" validate:"required,max=128"`
    Quantity    int        `json:"quantity" validate:"gt=0"`
    DueDate     *time.Time `json:"dueDate,omitempty"`
    Reward      *float64   `json:"reward,omitempty" validate:"omitempty,gte=0"`
}

type InventoryIn struct {
    Location string `json:"location" validate:"required,max=128"`
    Material string `json:"material" validate:"required,max=128"`
    Position int    `json:"position" validate:"gte=0"`
}

type LaneIn struct {
    Origin             string  `json:"origin" validate:"required,max=128"`
    Destination        string  `json:"destination" validate:"required,max=128"`
    ExpectedTravelTime float64 `json:"expectedTravelTime" validate:"gte=0"`
}

// Order statuses
const (
    OrderOpen    = "open"
    OrderSourced = "sourced"
)

// OpenOrder is the stored order row, including the sourcing write-back.
type OpenOrder struct {
    TenantID        string     `json:"tenantId"`
    OrderNumber     string     `json:"orderNumber"`
    Destination     string     `json:"destination"`
    Material        string     `json:"material"`
    Quantity        int        `json:"quantity"`
    DueDate         *time.Time `json:"dueDate,omitempty"`
    Reward          *float64   `json:"reward,omitempty"`
    Status          string     `json:"status"`
    OriginLocation  string     `json:"originLocation,omitempty"`
    PlannedShipDate *time.Time `json:"plannedShipDate,omitempty"`
}

// Candidate is one row of the open order x lane x inventory join.
type Candidate struct {
    OrderNumber string
    Destination string
    Material    string
    Quantity    int
    DueDate     *time.Time
    Reward      *float64
    Origin      string
    Position    int
    TravelTime  float64
}

type RunRequest struct {
    NodeBudget   int64 `json:"nodeBudget,omitempty" validate:"gte=0"`
    TimeBudgetMs int   `json:"timeBudgetMs,omitempty" validate:"gte=0"`
    Workers      int   `json:"workers,omitempty" validate:"gte=0,lte=64"`
}

// Run is a persisted sourcing run.
type Run struct {
    ID          string    `json:"id"`
    TenantID    string    `json:"tenantId"`
    Status      string    `json:"status"`
    Objective   float64   `json:"objective"`
    RootBound   float64   `json:"rootBound"`
    Nodes       int64     `json:"nodes"`
    Pruned      int64     `json:"pruned"`
    Incumbents  int64     `json:"incumbents"`
    Workers     int       `json:"workers"`
    ElapsedMs   int64     `json:"elapsedMs"`
    OrdersFound int       `json:"ordersFound"`
    Assigned    int       `json:"assigned"`
    DecidedAt   time.Time `json:"decidedAt"`
    Decisions   []Decision `json:"decisions,omitempty"`
}

// Decision is the per-order outcome of a run.
type Decision struct {
    RunID       string  `json:"runId"`
    OrderNumber string  `json:"orderNumber"`
    CenterID    string  `json:"centerId,omitempty"`
    Origin      string  `json:"origin,omitempty"`
    Assigned    bool    `json:"assigned"`
    Quantity    int     `json:"quantity"`
    Reward      float64 `json:"reward"`
    TravelTime  float64 `json:"travelTime"`
}

// AuditEntry is a row of the job log.
type AuditEntry struct {
    ID          string    `json:"id"`
    TenantID    string    `json:"tenantId"`
    Program     string    `json:"program"`
    EventType   string    `json:"eventType"`
    Description string    `json:"description"`
    TS          time.Time `json:"ts"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url" validate:"required,url"`
    Events   []string `json:"events" validate:"required,min=1,dive,required"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
