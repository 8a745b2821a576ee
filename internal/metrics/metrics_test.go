package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandlerExposesSourcingCollectors(t *testing.T) {
	RegisterDefault()
	RegisterDefault()

	SourcingRuns.WithLabelValues("optimal").Inc()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), `sourcing_runs_total{status="optimal"}`)
}
