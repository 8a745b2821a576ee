package sourcing

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunAllCoversEveryTenant(t *testing.T) {
	m := seedStore(t)
	svc, n := newTestService(m)
	s := NewScheduler(svc, "@every 1h", []string{"t1", "t2"}, zerolog.Nop())

	s.RunAll()
	require.Len(t, n.runs, 2)
	require.Equal(t, "t1", n.runs[0].TenantID)
	require.Equal(t, 3, n.runs[0].Assigned)
	require.Equal(t, "t2", n.runs[1].TenantID)
	require.Zero(t, n.runs[1].OrdersFound)

	runs, _, err := m.ListRuns(context.Background(), "t2", "", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	svc, _ := newTestService(seedStore(t))
	s := NewScheduler(svc, "not a cron spec", nil, zerolog.Nop())
	require.Error(t, s.Start())
}

func TestSchedulerStartStop(t *testing.T) {
	svc, _ := newTestService(seedStore(t))
	s := NewScheduler(svc, "@every 1h", []string{"t1"}, zerolog.Nop())
	require.NoError(t, s.Start())
	s.Stop()
}
