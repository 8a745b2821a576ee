package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port                     string   `yaml:"port"`
		ReadHeaderTimeoutSeconds int      `yaml:"read_header_timeout_seconds"`
		ShutdownTimeoutSeconds   int      `yaml:"shutdown_timeout_seconds"`
		AllowOrigins             []string `yaml:"allow_origins"`
		DefaultTenant            string   `yaml:"default_tenant"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"logging"`
	Database struct {
		URL           string `yaml:"url"`
		Migrate       bool   `yaml:"migrate"`
		MigrationsDir string `yaml:"migrations_dir"`
	} `yaml:"database"`
	Redis struct {
		URL string `yaml:"url"`
	} `yaml:"redis"`
	Auth struct {
		Mode        string `yaml:"mode"` // none, dev, hmac or jwks
		HMACSecret  string `yaml:"hmac_secret"`
		JWKSURL     string `yaml:"jwks_url"`
		TenantClaim string `yaml:"tenant_claim"`
		RoleClaim   string `yaml:"role_claim"`
	} `yaml:"auth"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Webhooks struct {
		MaxAttempts int `yaml:"max_attempts"`
	} `yaml:"webhooks"`
	Solver struct {
		NodeBudget   int64 `yaml:"node_budget"`
		TimeBudgetMs int   `yaml:"time_budget_ms"`
		Workers      int   `yaml:"workers"`
	} `yaml:"solver"`
	Sourcing struct {
		DefaultReward  float64  `yaml:"default_reward"`
		Schedule       string   `yaml:"schedule"`
		Tenants        []string `yaml:"tenants"`
		LockTTLSeconds int      `yaml:"lock_ttl_seconds"`
	} `yaml:"sourcing"`
}

// Default returns the built-in configuration before file and env overrides.
func Default() Config {
	var c Config
	c.Server.Port = "8080"
	c.Server.ReadHeaderTimeoutSeconds = 5
	c.Server.ShutdownTimeoutSeconds = 15
	c.Server.DefaultTenant = "t_demo"
	c.Logging.Level = "info"
	c.Database.Migrate = true
	c.Database.MigrationsDir = "db/migrations"
	c.Auth.Mode = "none"
	c.Auth.TenantClaim = "tenant"
	c.Auth.RoleClaim = "role"
	c.RateLimit.RPS = 20
	c.RateLimit.Burst = 40
	c.Webhooks.MaxAttempts = 10
	c.Solver.NodeBudget = 5_000_000
	c.Solver.TimeBudgetMs = 30_000
	c.Solver.Workers = 1
	c.Sourcing.DefaultReward = 100
	c.Sourcing.LockTTLSeconds = 300
	return c
}

// Load returns defaults, overlaid by the YAML file at $SOURCING_CONFIG, then
// by environment variables. A missing or malformed file is reported.
func Load() (Config, error) {
	c := Default()
	if path := os.Getenv("SOURCING_CONFIG"); path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return c, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("ALLOW_ORIGINS"); v != "" {
		c.Server.AllowOrigins = splitCSV(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Database.URL = v
	}
	if v := os.Getenv("DB_MIGRATE"); v == "false" || v == "0" {
		c.Database.Migrate = false
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("AUTH_MODE"); v != "" {
		c.Auth.Mode = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("AUTH_HMAC_SECRET"); v != "" {
		c.Auth.HMACSecret = v
	}
	if v := os.Getenv("AUTH_JWKS_URL"); v != "" {
		c.Auth.JWKSURL = v
	}
	if v := os.Getenv("AUTH_TENANT_CLAIM"); v != "" {
		c.Auth.TenantClaim = v
	}
	if v := os.Getenv("AUTH_ROLE_CLAIM"); v != "" {
		c.Auth.RoleClaim = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LOG_PRETTY"); v == "1" || v == "true" {
		c.Logging.Pretty = true
	}
	if v := os.Getenv("RATE_RPS"); v != "" {
		var f float64
		_, _ = fmt.Sscan(v, &f)
		if f > 0 {
			c.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("WEBHOOK_MAX_ATTEMPTS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Webhooks.MaxAttempts = n
		}
	}
	if v := os.Getenv("SOLVER_NODE_BUDGET"); v != "" {
		var n int64
		_, _ = fmt.Sscan(v, &n)
		if n >= 0 {
			c.Solver.NodeBudget = n
		}
	}
	if v := os.Getenv("SOLVER_TIME_BUDGET_MS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n >= 0 {
			c.Solver.TimeBudgetMs = n
		}
	}
	if v := os.Getenv("SOLVER_WORKERS"); v != "" {
		var n int
		_, _ = fmt.Sscan(v, &n)
		if n > 0 {
			c.Solver.Workers = n
		}
	}
	if v := os.Getenv("SOURCING_SCHEDULE"); v != "" {
		c.Sourcing.Schedule = v
	}
	if v := os.Getenv("SOURCING_TENANTS"); v != "" {
		c.Sourcing.Tenants = splitCSV(v)
	}
	return c, nil
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return ":" + c.Server.Port }

func (c Config) TimeBudget() time.Duration {
	return time.Duration(c.Solver.TimeBudgetMs) * time.Millisecond
}

func (c Config) LockTTL() time.Duration {
	return time.Duration(c.Sourcing.LockTTLSeconds) * time.Second
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
