package webhooks

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"dcsourcing/internal/model"
	"dcsourcing/internal/sourcing"
	"dcsourcing/internal/store"
)

type recordStore struct {
	*store.Memory
	mu    sync.Mutex
	marks []MarkRec
	fails []FailRec
}
type MarkRec struct {
	ID            string
	Success       bool
	Code, Latency int
	LastErr       string
}
type FailRec struct {
	ID            string
	Code, Latency int
	LastErr       string
}

func (r *recordStore) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.marks = append(r.marks, MarkRec{ID: id, Success: success, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.MarkWebhookDelivery(ctx, id, success, nextAttemptAt, lastError, responseCode, latencyMs)
}
func (r *recordStore) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	r.mu.Lock()
	r.fails = append(r.fails, FailRec{ID: id, Code: responseCode, Latency: latencyMs, LastErr: lastError})
	r.mu.Unlock()
	return r.Memory.FailWebhookDelivery(ctx, id, lastError, responseCode, latencyMs)
}

func TestWorkerProcessOnce_SuccessAndSignature(t *testing.T) {
	var gotSig, gotType string
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("X-Event-Type")
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(200)
	}))
	defer srv.Close()

	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 3, Log: zerolog.Nop()}
	id, err := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", sourcing.EventCompleted, srv.URL, "secret", []byte(`{"id":"evt1"}`))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	w.processOnce()

	require.Equal(t, sourcing.EventCompleted, gotType)
	require.NoError(t, VerifyHeader("secret", body, gotSig, time.Now(), time.Minute))
	require.ErrorIs(t, VerifyHeader("other", body, gotSig, time.Now(), time.Minute), ErrBadSignature)
	require.Len(t, rs.marks, 1)
	require.True(t, rs.marks[0].Success)
}

func TestWorkerProcessOnce_RetryThenFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(500) }))
	defer srv.Close()
	rs := &recordStore{Memory: store.NewMemory()}
	w := &Worker{Store: rs, HTTP: srv.Client(), Stop: make(chan struct{}), MaxAttempts: 2, Log: zerolog.Nop()}
	id, _ := rs.Memory.EnqueueWebhook(context.Background(), "t1", "", sourcing.EventCompleted, srv.URL, "", []byte(`{}`))

	w.processOnce()
	require.Len(t, rs.marks, 1)
	require.False(t, rs.marks[0].Success)
	require.Equal(t, 500, rs.marks[0].Code)

	// make it due again
	require.NoError(t, rs.RetryWebhookDelivery(context.Background(), "t1", id))
	w.processOnce()
	require.Len(t, rs.fails, 1)
	require.Equal(t, id, rs.fails[0].ID)
}

func TestPublisherRunCompletedEnqueuesSummary(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	_, err := m.CreateSubscription(ctx, model.SubscriptionRequest{TenantID: "t1", URL: "http://hook", Events: []string{sourcing.EventCompleted}, Secret: "k"})
	require.NoError(t, err)
	p := NewPublisher(m, zerolog.Nop())

	run := model.Run{ID: "r1", TenantID: "t1", Status: "optimal", Decisions: []model.Decision{{OrderNumber: "o1"}}}
	p.RunCompleted(ctx, run)
	p.RunCompleted(ctx, run)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "k", due[0].Secret)

	var payload struct {
		ID   string    `json:"id"`
		Type string    `json:"type"`
		Data model.Run `json:"data"`
	}
	require.NoError(t, json.Unmarshal(due[0].Payload, &payload))
	require.Equal(t, "evt_r1", payload.ID)
	require.Equal(t, sourcing.EventCompleted, payload.Type)
	require.Empty(t, payload.Data.Decisions)
}

func TestNextBackoffCapped(t *testing.T) {
	require.Equal(t, time.Second, nextBackoff(-3))
	require.Equal(t, 8*time.Second, nextBackoff(3))
	require.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestSignatureHeaderRejectsTamperingAndReplays(t *testing.T) {
	body := []byte(`{"id":"evt_1"}`)
	sent := time.Unix(1_700_000_000, 0)
	h := SignHeader("k", body, sent)
	require.Regexp(t, `^t=1700000000,v1=[0-9a-f]{64}$`, h)

	require.NoError(t, VerifyHeader("k", body, h, sent.Add(30*time.Second), time.Minute))
	require.ErrorIs(t, VerifyHeader("k", []byte(`{"id":"evt_2"}`), h, sent, time.Minute), ErrBadSignature)
	require.ErrorIs(t, VerifyHeader("k", body, h, sent.Add(time.Hour), time.Minute), ErrBadSignature)
	require.NoError(t, VerifyHeader("k", body, h, sent.Add(time.Hour), 0))
	require.ErrorIs(t, VerifyHeader("k", body, "v1=abc", sent, 0), ErrBadSignature)
}
