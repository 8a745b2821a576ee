package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"dcsourcing/internal/model"
)

func seedMemory(t *testing.T) *Memory {
	t.Helper()
	ctx := context.Background()
	m := NewMemory()
	_, _, err := m.UpsertOrders(ctx, "t1", []model.OrderIn{
		{OrderNumber: "1002", Destination: "BER", Material: "M1", Quantity: 6},
		{OrderNumber: "1001", Destination: "BER", Material: "M1", Quantity: 4},
		{OrderNumber: "1003", Destination: "MUC", Material: "M2", Quantity: 1},
	})
	require.NoError(t, err)
	_, err = m.UpsertInventories(ctx, "t1", []model.InventoryIn{
		{Location: "HAM", Material: "M1", Position: 10},
		{Location: "FRA", Material: "M1", Position: 5},
		{Location: "FRA", Material: "M2", Position: 5},
	})
	require.NoError(t, err)
	_, err = m.UpsertLanes(ctx, "t1", []model.LaneIn{
		{Origin: "HAM", Destination: "BER", ExpectedTravelTime: 30},
		{Origin: "FRA", Destination: "BER", ExpectedTravelTime: 10},
		// no inventory of M1 at CGN: dropped by the join
		{Origin: "CGN", Destination: "BER", ExpectedTravelTime: 1},
	})
	require.NoError(t, err)
	return m
}

func TestMemoryFetchCandidatesJoins(t *testing.T) {
	m := seedMemory(t)
	cands, err := m.FetchCandidates(context.Background(), "t1")
	require.NoError(t, err)

	type key struct{ order, origin string }
	var got []key
	for _, c := range cands {
		got = append(got, key{c.OrderNumber, c.Origin})
	}
	// 1003 has no lane into MUC.
	require.Equal(t, []key{{"1001", "FRA"}, {"1001", "HAM"}, {"1002", "FRA"}, {"1002", "HAM"}}, got)
	require.Equal(t, 5, cands[0].Position)
	require.Equal(t, 10.0, cands[0].TravelTime)

	other, err := m.FetchCandidates(context.Background(), "t2")
	require.NoError(t, err)
	require.Empty(t, other)
}

func TestMemoryUpsertOrdersCounts(t *testing.T) {
	m := seedMemory(t)
	created, updated, err := m.UpsertOrders(context.Background(), "t1", []model.OrderIn{
		{OrderNumber: "1001", Destination: "BER", Material: "M1", Quantity: 9},
		{OrderNumber: "2000", Destination: "BER", Material: "M1", Quantity: 1},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, 1, updated)

	orders, next, err := m.ListOrders(context.Background(), "t1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "1001", orders[0].OrderNumber)
	require.Equal(t, 9, orders[0].Quantity)
	require.Equal(t, "1002", next)

	rest, next, err := m.ListOrders(context.Background(), "t1", "", next, 2)
	require.NoError(t, err)
	require.Equal(t, "1003", rest[0].OrderNumber)
	require.Equal(t, "2000", rest[1].OrderNumber)
	require.Empty(t, next)
}

func TestMemorySaveRunWritesBack(t *testing.T) {
	m := seedMemory(t)
	ctx := context.Background()
	decided := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	run := model.Run{ID: "r1", TenantID: "t1", Status: "optimal", OrdersFound: 2, Assigned: 1, DecidedAt: decided}
	err := m.SaveRun(ctx, run, []model.Decision{
		{RunID: "r1", OrderNumber: "1001", CenterID: "FRA/M1", Origin: "FRA", Assigned: true, Quantity: 4, Reward: 100, TravelTime: 10},
		{RunID: "r1", OrderNumber: "1002", Quantity: 6},
	})
	require.NoError(t, err)

	sourced, _, err := m.ListOrders(ctx, "t1", model.OrderSourced, "", 0)
	require.NoError(t, err)
	require.Len(t, sourced, 1)
	require.Equal(t, "FRA", sourced[0].OriginLocation)
	require.Equal(t, decided, *sourced[0].PlannedShipDate)

	// sourced orders leave the candidate set
	cands, err := m.FetchCandidates(ctx, "t1")
	require.NoError(t, err)
	for _, c := range cands {
		require.NotEqual(t, "1001", c.OrderNumber)
	}

	log, _, err := m.ListAuditLog(ctx, "t1", "", 0)
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, "2 open orders were found. 1 decisions were made.", log[0].Description)
	require.Equal(t, AuditEventType, log[0].EventType)

	got, err := m.GetRun(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Equal(t, "optimal", got.Status)
	_, err = m.GetRun(ctx, "t2", "r1")
	require.ErrorIs(t, err, ErrNotFound)

	ds, err := m.ListDecisions(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Len(t, ds, 2)
	_, err = m.ListDecisions(ctx, "t1", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListRunsNewestFirst(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, m.SaveRun(ctx, model.Run{ID: id, TenantID: "t1"}, nil))
	}
	page, next, err := m.ListRuns(ctx, "t1", "", 2)
	require.NoError(t, err)
	require.Equal(t, "c", page[0].ID)
	require.Equal(t, "b", page[1].ID)
	require.Equal(t, "b", next)

	page, next, err = m.ListRuns(ctx, "t1", next, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "a", page[0].ID)
	require.Empty(t, next)
}

func TestMemoryWebhookQueue(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	id, err := m.EnqueueWebhook(ctx, "t1", "s1", "sourcing.completed", "http://x", "k", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	dup, err := m.EnqueueWebhook(ctx, "t1", "s1", "sourcing.completed", "http://x", "k", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	require.Equal(t, id, dup)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	require.NoError(t, m.RetryWebhookDelivery(ctx, "t1", id))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, 1, due[0].Attempts)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "gave up", 500, 3))
	list, _, err := m.ListWebhookDeliveries(ctx, "t1", DeliveryFailed, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "gave up", list[0].LastError)
	require.ErrorIs(t, m.RetryWebhookDelivery(ctx, "t2", id), ErrNotFound)
}

func TestMemorySubscriptions(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://x", Events: []string{"sourcing.completed"}})
	require.NoError(t, err)
	subs, err := m.GetSubscriptionsForEvent(ctx, "t1", "sourcing.completed")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	subs, err = m.GetSubscriptionsForEvent(ctx, "t1", "other")
	require.NoError(t, err)
	require.Empty(t, subs)

	require.NoError(t, m.DeleteSubscription(ctx, "t1", s.ID))
	require.ErrorIs(t, m.DeleteSubscription(ctx, "t1", s.ID), ErrNotFound)
}
