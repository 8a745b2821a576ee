package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	_ = os.Unsetenv("SOURCING_CONFIG")
	_ = os.Unsetenv("PORT")
	_ = os.Unsetenv("SOLVER_WORKERS")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, ":8080", c.Addr())
	require.Equal(t, 100.0, c.Sourcing.DefaultReward)
	require.Equal(t, 1, c.Solver.Workers)
	require.Equal(t, 30*time.Second, c.TimeBudget())
	require.Equal(t, "none", c.Auth.Mode)
}

func TestFileThenEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sourcing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9000"
solver:
  workers: 2
  node_budget: 1000
sourcing:
  default_reward: 250
  tenants: [a, b]
`), 0o600))
	t.Setenv("SOURCING_CONFIG", path)
	t.Setenv("SOLVER_WORKERS", "8")
	t.Setenv("SOURCING_TENANTS", " x, ,y ")
	t.Setenv("RATE_RPS", "not-a-number")
	t.Setenv("AUTH_MODE", " HMAC ")

	c, err := Load()
	require.NoError(t, err)
	require.Equal(t, "9000", c.Server.Port)
	require.Equal(t, int64(1000), c.Solver.NodeBudget)
	require.Equal(t, 8, c.Solver.Workers)
	require.Equal(t, 250.0, c.Sourcing.DefaultReward)
	require.Equal(t, []string{"x", "y"}, c.Sourcing.Tenants)
	require.Equal(t, 20.0, c.RateLimit.RPS)
	require.Equal(t, "hmac", c.Auth.Mode)
	require.Equal(t, "tenant", c.Auth.TenantClaim)
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))
	t.Setenv("SOURCING_CONFIG", path)
	_, err := Load()
	require.Error(t, err)
}
