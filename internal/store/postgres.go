package store

import (
    "context"
    "crypto/sha256"
    "database/sql"
    "encoding/hex"
    "encoding/json"
    "errors"
    "fmt"
    "os"
    "path/filepath"
    "sort"
    "time"

    "github.com/google/uuid"
    _ "github.com/jackc/pgx/v5/stdlib"

    "dcsourcing/internal/model"
)

type Postgres struct {
    db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
    db, err := sql.Open("pgx", dsn)
    if err != nil {
        return nil, err
    }
    if err := db.Ping(); err != nil {
        return nil, err
    }
    return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir, in lexical order, that has not
// been recorded in schema_migrations yet. Each file runs in its own
// transaction.
func (p *Postgres) MigrateDir(dir string) error {
    ctx := context.Background()
    if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (name text PRIMARY KEY, applied_at timestamptz NOT NULL DEFAULT now())`); err != nil {
        return fmt.Errorf("create schema_migrations: %w", err)
    }
    files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
    if err != nil { return err }
    sort.Strings(files)
    for _, f := range files {
        name := filepath.Base(f)
        var seen int
        if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE name=$1`, name).Scan(&seen); err != nil {
            return err
        }
        if seen > 0 { continue }
        body, err := os.ReadFile(f)
        if err != nil { return err }
        tx, err := p.db.BeginTx(ctx, nil)
        if err != nil { return err }
        if _, err := tx.ExecContext(ctx, string(body)); err != nil {
            _ = tx.Rollback()
            return fmt.Errorf("migration %s: %w", name, err)
        }
        if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
            _ = tx.Rollback()
            return err
        }
        if err := tx.Commit(); err != nil { return err }
    }
    return nil
}

// UpsertOrders inserts or replaces orders by (tenant_id, order_number).
// Sourcing state (status, origin, planned ship date) survives an update.
func (p *Postgres) UpsertOrders(ctx context.Context, tenantID string, orders []model.OrderIn) (int, int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, 0, err }
    defer func(){ _ = tx.Rollback() }()

    created, updated := 0, 0
    for _, o := range orders {
        var inserted bool
        err := tx.QueryRowContext(ctx, `INSERT INTO open_orders (tenant_id, order_number, destination, material, quantity, due_date, reward, status)
            VALUES ($1,$2,$3,$4,$5,$6,$7,'open')
            ON CONFLICT (tenant_id, order_number) DO UPDATE SET destination=EXCLUDED.destination, material=EXCLUDED.material,
                quantity=EXCLUDED.quantity, due_date=EXCLUDED.due_date, reward=EXCLUDED.reward, updated_at=now()
            RETURNING (xmax = 0)`, tenantID, o.OrderNumber, o.Destination, o.Material, o.Quantity, o.DueDate, o.Reward).Scan(&inserted)
        if err != nil { return 0, 0, err }
        if inserted { created++ } else { updated++ }
    }
    if err := tx.Commit(); err != nil { return 0, 0, err }
    return created, updated, nil
}

func (p *Postgres) ListOrders(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.OpenOrder, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT order_number, destination, material, quantity, due_date, reward, status, COALESCE(origin_location,''), planned_ship_date
        FROM open_orders WHERE tenant_id=$1 AND ($2 = '' OR status=$2) AND order_number > $3 ORDER BY order_number LIMIT $4`, tenantID, status, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.OpenOrder{}
    for rows.Next() {
        o := model.OpenOrder{TenantID: tenantID}
        var due, planned sql.NullTime
        var reward sql.NullFloat64
        if err := rows.Scan(&o.OrderNumber, &o.Destination, &o.Material, &o.Quantity, &due, &reward, &o.Status, &o.OriginLocation, &planned); err != nil {
            return nil, "", err
        }
        o.DueDate = timePtr(due)
        o.PlannedShipDate = timePtr(planned)
        o.Reward = floatPtr(reward)
        out = append(out, o)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].OrderNumber }
    return out, next, nil
}

func (p *Postgres) UpsertInventories(ctx context.Context, tenantID string, rows []model.InventoryIn) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    for _, r := range rows {
        _, err := tx.ExecContext(ctx, `INSERT INTO inventories (tenant_id, location, material, position) VALUES ($1,$2,$3,$4)
            ON CONFLICT (tenant_id, location, material) DO UPDATE SET position=EXCLUDED.position, updated_at=now()`, tenantID, r.Location, r.Material, r.Position)
        if err != nil { return 0, err }
    }
    return len(rows), tx.Commit()
}

func (p *Postgres) UpsertLanes(ctx context.Context, tenantID string, rows []model.LaneIn) (int, error) {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return 0, err }
    defer func(){ _ = tx.Rollback() }()
    for _, r := range rows {
        _, err := tx.ExecContext(ctx, `INSERT INTO transportation_lanes (tenant_id, origin, destination, expected_travel_time) VALUES ($1,$2,$3,$4)
            ON CONFLICT (tenant_id, origin, destination) DO UPDATE SET expected_travel_time=EXCLUDED.expected_travel_time, updated_at=now()`, tenantID, r.Origin, r.Destination, r.ExpectedTravelTime)
        if err != nil { return 0, err }
    }
    return len(rows), tx.Commit()
}

const candidatesSQL = `SELECT o.order_number, o.destination, o.material, o.quantity, o.due_date, o.reward,
        l.origin, i.position, l.expected_travel_time
    FROM open_orders o
    JOIN transportation_lanes l ON l.tenant_id = o.tenant_id AND l.destination = o.destination
    JOIN inventories i ON i.tenant_id = o.tenant_id AND i.location = l.origin AND i.material = o.material
    WHERE o.tenant_id = $1 AND o.status = 'open'
    ORDER BY o.order_number, l.origin`

func (p *Postgres) FetchCandidates(ctx context.Context, tenantID string) ([]model.Candidate, error) {
    rows, err := p.db.QueryContext(ctx, candidatesSQL, tenantID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Candidate{}
    for rows.Next() {
        var c model.Candidate
        var due sql.NullTime
        var reward sql.NullFloat64
        if err := rows.Scan(&c.OrderNumber, &c.Destination, &c.Material, &c.Quantity, &due, &reward, &c.Origin, &c.Position, &c.TravelTime); err != nil {
            return nil, err
        }
        c.DueDate = timePtr(due)
        c.Reward = floatPtr(reward)
        out = append(out, c)
    }
    return out, rows.Err()
}

func (p *Postgres) SaveRun(ctx context.Context, run model.Run, decisions []model.Decision) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func(){ _ = tx.Rollback() }()

    _, err = tx.ExecContext(ctx, `INSERT INTO sourcing_runs (id, tenant_id, status, objective, root_bound, nodes, pruned, incumbents, workers, elapsed_ms, orders_found, assigned, decided_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
        run.ID, run.TenantID, run.Status, run.Objective, run.RootBound, run.Nodes, run.Pruned, run.Incumbents, run.Workers, run.ElapsedMs, run.OrdersFound, run.Assigned, run.DecidedAt)
    if err != nil { return fmt.Errorf("insert run: %w", err) }

    for _, d := range decisions {
        _, err = tx.ExecContext(ctx, `INSERT INTO sourcing_decisions (run_id, order_number, center_id, origin, assigned, quantity, reward, travel_time)
            VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, run.ID, d.OrderNumber, nullIfEmpty(d.CenterID), nullIfEmpty(d.Origin), d.Assigned, d.Quantity, d.Reward, d.TravelTime)
        if err != nil { return fmt.Errorf("insert decision %s: %w", d.OrderNumber, err) }
        if !d.Assigned { continue }
        _, err = tx.ExecContext(ctx, `UPDATE open_orders SET origin_location=$3, planned_ship_date=$4, status='sourced', updated_at=now()
            WHERE tenant_id=$1 AND order_number=$2`, run.TenantID, d.OrderNumber, d.Origin, run.DecidedAt)
        if err != nil { return fmt.Errorf("update order %s: %w", d.OrderNumber, err) }
    }

    _, err = tx.ExecContext(ctx, `INSERT INTO audit_log (id, tenant_id, program, event_type, description, ts) VALUES ($1,$2,$3,$4,$5,$6)`,
        uuid.New(), run.TenantID, AuditProgram, AuditEventType, AuditDescription(run.OrdersFound, run.Assigned), run.DecidedAt)
    if err != nil { return fmt.Errorf("insert audit: %w", err) }
    return tx.Commit()
}

const runColumns = `id::text, tenant_id, status, objective, root_bound, nodes, pruned, incumbents, workers, elapsed_ms, orders_found, assigned, decided_at`

func scanRun(sc interface{ Scan(...any) error }) (model.Run, error) {
    var r model.Run
    err := sc.Scan(&r.ID, &r.TenantID, &r.Status, &r.Objective, &r.RootBound, &r.Nodes, &r.Pruned, &r.Incumbents, &r.Workers, &r.ElapsedMs, &r.OrdersFound, &r.Assigned, &r.DecidedAt)
    return r, err
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
    if _, err := uuid.Parse(runID); err != nil { return model.Run{}, ErrNotFound }
    r, err := scanRun(p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM sourcing_runs WHERE tenant_id=$1 AND id=$2`, tenantID, runID))
    if errors.Is(err, sql.ErrNoRows) { return model.Run{}, ErrNotFound }
    return r, err
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]model.Run, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        if _, perr := uuid.Parse(cursor); perr != nil { return []model.Run{}, "", nil }
        rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM sourcing_runs WHERE tenant_id=$1
            AND (created_at, id) < (SELECT created_at, id FROM sourcing_runs WHERE id=$2) ORDER BY created_at DESC, id DESC LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM sourcing_runs WHERE tenant_id=$1 ORDER BY created_at DESC, id DESC LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Run{}
    for rows.Next() {
        r, err := scanRun(rows)
        if err != nil { return nil, "", err }
        out = append(out, r)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) ListDecisions(ctx context.Context, tenantID, runID string) ([]model.Decision, error) {
    if _, err := p.GetRun(ctx, tenantID, runID); err != nil { return nil, err }
    rows, err := p.db.QueryContext(ctx, `SELECT order_number, COALESCE(center_id,''), COALESCE(origin,''), assigned, quantity, reward, travel_time
        FROM sourcing_decisions WHERE run_id=$1 ORDER BY order_number`, runID)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Decision{}
    for rows.Next() {
        d := model.Decision{RunID: runID}
        if err := rows.Scan(&d.OrderNumber, &d.CenterID, &d.Origin, &d.Assigned, &d.Quantity, &d.Reward, &d.TravelTime); err != nil {
            return nil, err
        }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) ListAuditLog(ctx context.Context, tenantID, cursor string, limit int) ([]model.AuditEntry, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    var rows *sql.Rows
    var err error
    if cursor != "" {
        if _, perr := uuid.Parse(cursor); perr != nil { return []model.AuditEntry{}, "", nil }
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, program, event_type, description, ts FROM audit_log WHERE tenant_id=$1
            AND (ts, id) < (SELECT ts, id FROM audit_log WHERE id=$2) ORDER BY ts DESC, id DESC LIMIT $3`, tenantID, cursor, limit)
    } else {
        rows, err = p.db.QueryContext(ctx, `SELECT id::text, program, event_type, description, ts FROM audit_log WHERE tenant_id=$1 ORDER BY ts DESC, id DESC LIMIT $2`, tenantID, limit)
    }
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.AuditEntry{}
    for rows.Next() {
        e := model.AuditEntry{TenantID: tenantID}
        if err := rows.Scan(&e.ID, &e.Program, &e.EventType, &e.Description, &e.TS); err != nil { return nil, "", err }
        out = append(out, e)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
    id := uuid.New().String()
    ev, _ := json.Marshal(req.Events)
    _, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, nullIfEmpty(req.Secret))
    if err != nil { return model.Subscription{}, err }
    return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
    filter, _ := json.Marshal([]string{eventType})
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, string(filter))
    if err != nil { return nil, err }
    defer rows.Close()
    out := []model.Subscription{}
    for rows.Next() {
        var s model.Subscription
        var events []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil { return nil, err }
        s.TenantID = tenantID
        _ = json.Unmarshal(events, &s.Events)
        out = append(out, s)
    }
    return out, rows.Err()
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, COALESCE(secret,''), events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []model.Subscription{}
    var last string
    for rows.Next() {
        var s model.Subscription
        var ev []byte
        if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil { return nil, "", err }
        s.TenantID = tenantID
        _ = json.Unmarshal(ev, &s.Events)
        out = append(out, s)
        last = s.ID
    }
    next := ""
    if len(out) == limit { next = last }
    return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
    id := uuid.New().String()
    dk := computeDedupKey(payload)
    var got string
    err := p.db.QueryRowContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO UPDATE SET updated_at=now()
        RETURNING id::text`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk).Scan(&got)
    if err != nil { return "", err }
    return got, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
    if err != nil { return nil, err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        var d WebhookDelivery
        if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil { return nil, err }
        out = append(out, d)
    }
    return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
    if !success {
        if nextAttemptAt == nil { t := time.Now().Add(1 * time.Minute); nextAttemptAt = &t }
        _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$1, next_attempt_at=$2, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$3`, nullIfEmpty(lastError), *nextAttemptAt, id, responseCode, latencyMs)
        return err
    }
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
    return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
    _, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
    return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]WebhookDelivery, string, error) {
    if limit <= 0 || limit > 500 { limit = 100 }
    rows, err := p.db.QueryContext(ctx, `SELECT id::text, COALESCE(subscription_id::text,''), event_type, url, status, attempts, next_attempt_at, COALESCE(last_error,'')
        FROM webhook_deliveries WHERE tenant_id=$1 AND ($2 = '' OR status=$2) AND id::text > $3 ORDER BY id LIMIT $4`, tenantID, status, cursor, limit)
    if err != nil { return nil, "", err }
    defer rows.Close()
    out := []WebhookDelivery{}
    for rows.Next() {
        d := WebhookDelivery{TenantID: tenantID}
        var nextAt sql.NullTime
        if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Status, &d.Attempts, &nextAt, &d.LastError); err != nil { return nil, "", err }
        d.NextAttemptAt = timePtr(nextAt)
        out = append(out, d)
    }
    if err := rows.Err(); err != nil { return nil, "", err }
    next := ""
    if len(out) == limit { next = out[len(out)-1].ID }
    return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
    if _, err := uuid.Parse(id); err != nil { return ErrNotFound }
    res, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
    if err != nil { return err }
    if n, _ := res.RowsAffected(); n == 0 { return ErrNotFound }
    return nil
}

func computeDedupKey(payload []byte) string {
    // try to parse JSON and use id
    var m map[string]any
    if json.Unmarshal(payload, &m) == nil {
        if v, ok := m["id"].(string); ok && v != "" {
            return v
        }
    }
    sum := sha256.Sum256(payload)
    return hex.EncodeToString(sum[:8])
}

// Helpers
func nullIfEmpty(s string) any { if s == "" { return nil }; return s }

func timePtr(t sql.NullTime) *time.Time {
    if !t.Valid { return nil }
    v := t.Time
    return &v
}

func floatPtr(f sql.NullFloat64) *float64 {
    if !f.Valid { return nil }
    v := f.Float64
    return &v
}

var _ Store = (*Postgres)(nil)
