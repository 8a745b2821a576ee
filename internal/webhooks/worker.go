package webhooks

import (
    "bytes"
    "context"
    "net/http"
    "time"

    "github.com/rs/zerolog"

    "dcsourcing/internal/metrics"
    "dcsourcing/internal/store"
)

type Worker struct {
    Store       store.Store
    HTTP        *http.Client
    Stop        chan struct{}
    MaxAttempts int
    Log         zerolog.Logger
}

func NewWorker(s store.Store, maxAttempts int, log zerolog.Logger) *Worker {
    if maxAttempts <= 0 { maxAttempts = 10 }
    return &Worker{Store: s, HTTP: &http.Client{Timeout: 5 * time.Second}, Stop: make(chan struct{}), MaxAttempts: maxAttempts, Log: log}
}

func (w *Worker) Start() {
    go func() {
        ticker := time.NewTicker(1 * time.Second)
        defer ticker.Stop()
        for {
            select {
            case <-w.Stop:
                return
            case <-ticker.C:
                w.processOnce()
            }
        }
    }()
}

func (w *Worker) processOnce() {
    ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    items, err := w.Store.FetchDueWebhookDeliveries(ctx, 50)
    if err != nil {
        w.Log.Warn().Err(err).Msg("fetch due webhook deliveries")
        return
    }
    for _, it := range items {
        success := false
        next := time.Now().Add(nextBackoff(it.Attempts))
        req, err := http.NewRequestWithContext(ctx, http.MethodPost, it.URL, bytes.NewReader(it.Payload))
        if err != nil {
            _ = w.Store.FailWebhookDelivery(ctx, it.ID, err.Error(), 0, 0)
            w.observe(it.EventType, store.DeliveryFailed, 0)
            continue
        }
        req.Header.Set("Content-Type", "application/json")
        req.Header.Set("X-Event-Type", it.EventType)
        req.Header.Set("X-Delivery-Id", it.ID)
        if it.Secret != "" {
            req.Header.Set(SignatureHeader, SignHeader(it.Secret, it.Payload, time.Now()))
        }
        start := time.Now()
        resp, err := w.HTTP.Do(req)
        latency := int(time.Since(start).Milliseconds())
        code := 0
        if err == nil && resp != nil {
            code = resp.StatusCode
            if resp.Body != nil { _ = resp.Body.Close() }
            if code >= 200 && code < 300 { success = true }
        }
        lastErr := ""
        if !success {
            if err != nil { lastErr = err.Error() } else { lastErr = http.StatusText(code) }
        }
        if !success && it.Attempts+1 >= w.MaxAttempts {
            _ = w.Store.FailWebhookDelivery(ctx, it.ID, lastErr, code, latency)
            w.observe(it.EventType, store.DeliveryFailed, latency)
            w.Log.Warn().Str("delivery_id", it.ID).Str("url", it.URL).Int("code", code).Int("attempts", it.Attempts+1).Msg("webhook delivery failed permanently")
            continue
        }
        _ = w.Store.MarkWebhookDelivery(ctx, it.ID, success, &next, lastErr, code, latency)
        if success {
            w.observe(it.EventType, store.DeliveryDelivered, latency)
        } else {
            w.observe(it.EventType, store.DeliveryRetry, latency)
        }
    }
}

func (w *Worker) observe(eventType, status string, latencyMs int) {
    metrics.WebhookDeliveries.WithLabelValues(eventType, status).Inc()
    metrics.WebhookLatency.WithLabelValues(eventType, status).Observe(float64(latencyMs))
}

func nextBackoff(attempts int) time.Duration {
    if attempts < 0 { attempts = 0 }
    if attempts > 10 { attempts = 10 }
    base := time.Second * time.Duration(1<<attempts)
    if base > time.Hour { base = time.Hour }
    return base
}
