package api

import (
    "context"
    "sync"

    "dcsourcing/internal/model"
    "dcsourcing/internal/sourcing"
)

// Event is a message pushed to stream subscribers of a tenant.
type Event struct {
    Type string `json:"type"`
    Data any    `json:"data"`
}

type EventBroker interface {
    Subscribe(tenant string) chan Event
    Unsubscribe(tenant string, ch chan Event)
    Publish(tenant string, evt Event)
}

// Broker is the in-process EventBroker. Slow subscribers drop events.
type Broker struct {
    mu   sync.Mutex
    subs map[string]map[chan Event]struct{} // tenant -> set of channels
}

func NewBroker() *Broker {
    return &Broker{subs: map[string]map[chan Event]struct{}{}}
}

func (b *Broker) Subscribe(tenant string) chan Event {
    ch := make(chan Event, 8)
    b.mu.Lock()
    if b.subs[tenant] == nil { b.subs[tenant] = map[chan Event]struct{}{} }
    b.subs[tenant][ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(tenant string, ch chan Event) {
    b.mu.Lock()
    defer b.mu.Unlock()
    m := b.subs[tenant]
    if _, ok := m[ch]; !ok { return }
    delete(m, ch)
    if len(m) == 0 { delete(b.subs, tenant) }
    close(ch)
}

func (b *Broker) Publish(tenant string, evt Event) {
    b.mu.Lock()
    m := b.subs[tenant]
    for ch := range m {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}

// brokerNotifier streams completed runs, without decisions, to the tenant's subscribers.
type brokerNotifier struct{ b EventBroker }

func (n brokerNotifier) RunCompleted(_ context.Context, run model.Run) {
    run.Decisions = nil
    n.b.Publish(run.TenantID, Event{Type: sourcing.EventCompleted, Data: run})
}
