package integrations

import (
    "context"
    "fmt"

    "dcsourcing/internal/model"
    "dcsourcing/internal/store"
)

// Source is an external system that can hand over the three tables the
// sourcing job reads.
type Source interface {
    Name() string
    Fetch(ctx context.Context) (Snapshot, error)
}

type Snapshot struct {
    Orders      []model.OrderIn
    Inventories []model.InventoryIn
    Lanes       []model.LaneIn
}

// LoadResult counts what Load wrote.
type LoadResult struct {
    OrdersCreated int `json:"ordersCreated"`
    OrdersUpdated int `json:"ordersUpdated"`
    Inventories   int `json:"inventories"`
    Lanes         int `json:"lanes"`
}

// Load fetches a snapshot from src and upserts it for tenant.
func Load(ctx context.Context, src Source, s store.Store, tenant string) (LoadResult, error) {
    var res LoadResult
    snap, err := src.Fetch(ctx)
    if err != nil {
        return res, fmt.Errorf("%s: fetch: %w", src.Name(), err)
    }
    if len(snap.Orders) > 0 {
        if res.OrdersCreated, res.OrdersUpdated, err = s.UpsertOrders(ctx, tenant, snap.Orders); err != nil {
            return res, fmt.Errorf("%s: orders: %w", src.Name(), err)
        }
    }
    if len(snap.Inventories) > 0 {
        if res.Inventories, err = s.UpsertInventories(ctx, tenant, snap.Inventories); err != nil {
            return res, fmt.Errorf("%s: inventories: %w", src.Name(), err)
        }
    }
    if len(snap.Lanes) > 0 {
        if res.Lanes, err = s.UpsertLanes(ctx, tenant, snap.Lanes); err != nil {
            return res, fmt.Errorf("%s: lanes: %w", src.Name(), err)
        }
    }
    return res, nil
}
