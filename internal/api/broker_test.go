package api

import (
    "context"
    "testing"
    "time"

    "dcsourcing/internal/model"
    "dcsourcing/internal/sourcing"
)

func TestBrokerPublishSubscribe(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("t1")
    other := b.Subscribe("t2")

    evt := Event{Type: "test.event", Data: map[string]any{"x": 1}}
    b.Publish("t1", evt)

    select {
    case got := <-ch:
        if got.Type != evt.Type { t.Fatalf("got type %s, want %s", got.Type, evt.Type) }
        if got.Data.(map[string]any)["x"].(int) != 1 { t.Fatalf("bad payload: %+v", got.Data) }
    case <-time.After(200 * time.Millisecond):
        t.Fatal("timeout waiting for event")
    }
    select {
    case got := <-other:
        t.Fatalf("event leaked to another tenant: %+v", got)
    default:
    }

    b.Unsubscribe("t1", ch)
    b.Unsubscribe("t1", ch) // second call is a no-op
    if _, ok := <-ch; ok { t.Fatal("channel should be closed after unsubscribe") }
}

func TestBrokerNotifierDropsDecisions(t *testing.T) {
    b := NewBroker()
    ch := b.Subscribe("t1")
    defer b.Unsubscribe("t1", ch)

    run := model.Run{ID: "r1", TenantID: "t1", Decisions: []model.Decision{{OrderNumber: "o1"}}}
    brokerNotifier{b}.RunCompleted(context.Background(), run)

    got := <-ch
    if got.Type != sourcing.EventCompleted { t.Fatalf("type %s", got.Type) }
    sent := got.Data.(model.Run)
    if sent.ID != "r1" || sent.Decisions != nil { t.Fatalf("unexpected payload %+v", sent) }
    if len(run.Decisions) != 1 { t.Fatal("caller's run was modified") }
}
