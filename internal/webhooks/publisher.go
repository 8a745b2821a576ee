package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dcsourcing/internal/model"
	"dcsourcing/internal/sourcing"
	"dcsourcing/internal/store"
)

type Publisher struct {
	Store store.Store
	Log   zerolog.Logger
}

func NewPublisher(s store.Store, log zerolog.Logger) *Publisher {
	return &Publisher{Store: s, Log: log}
}

// Emit enqueues an event for every subscription of the tenant to eventType.
// The event id doubles as the delivery dedup key.
func (p *Publisher) Emit(ctx context.Context, tenantID, eventType, eventID string, data any) {
	subs, err := p.Store.GetSubscriptionsForEvent(ctx, tenantID, eventType)
	if err != nil {
		p.Log.Warn().Err(err).Str("tenant", tenantID).Msg("load subscriptions")
		return
	}
	if len(subs) == 0 {
		return
	}
	if eventID == "" {
		eventID = fmt.Sprintf("evt_%d", time.Now().UnixNano())
	}
	payload := map[string]any{
		"id":       eventID,
		"type":     eventType,
		"tenantId": tenantID,
		"ts":       time.Now().UTC().Format(time.RFC3339),
		"data":     data,
	}
	body, _ := json.Marshal(payload)
	for _, s := range subs {
		if _, err := p.Store.EnqueueWebhook(ctx, tenantID, s.ID, eventType, s.URL, s.Secret, body); err != nil {
			p.Log.Warn().Err(err).Str("tenant", tenantID).Str("subscription", s.ID).Msg("enqueue webhook")
		}
	}
}

// RunCompleted publishes a sourcing.completed event without the per-order
// decisions; subscribers fetch those by run id.
func (p *Publisher) RunCompleted(ctx context.Context, run model.Run) {
	summary := run
	summary.Decisions = nil
	p.Emit(ctx, run.TenantID, sourcing.EventCompleted, "evt_"+run.ID, summary)
}

var _ sourcing.Notifier = (*Publisher)(nil)
