package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "unknown mode",
			mutate: func(c *Config) { c.Mode = "daemon" },
			want:   "unknown mode",
		},
		{
			name:   "unknown log level",
			mutate: func(c *Config) { c.LogLevel = "trace" },
			want:   "unknown log_level",
		},
		{
			name:   "empty binance url",
			mutate: func(c *Config) { c.Binance.BaseURL = "" },
			want:   "binance: base_url",
		},
		{
			name: "engine without postgres",
			mutate: func(c *Config) {
				c.Engine.Enabled = true
				c.Postgres.Enabled = false
			},
			want: "live bots require postgres",
		},
		{
			name:   "bad exit priority entry",
			mutate: func(c *Config) { c.Engine.ExitPriority = []string{"stop_loss", "moon"} },
			want:   `unknown exit_priority entry "moon"`,
		},
		{
			name:   "pool min above max",
			mutate: func(c *Config) { c.Postgres.PoolMinConns = 50 },
			want:   "pool_min_conns must not exceed",
		},
		{
			name:   "zero rate limit window",
			mutate: func(c *Config) { c.RateLimit.Window = duration{} },
			want:   "rate_limit: window",
		},
		{
			name:   "telegram token without chat id",
			mutate: func(c *Config) { c.Notify.TelegramToken = "123:abc" },
			want:   "must be set together",
		},
		{
			name:   "server port out of range",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			want:   "server: port",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not contain %q", err.Error(), tc.want)
			}
		})
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
mode = "scan"
log_level = "debug"

[postgres]
enabled = false

[engine]
enabled = false
tick_interval = "10s"

[rate_limit]
requests = 500
window = "30s"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Mode != "scan" {
		t.Errorf("mode = %q, want scan", cfg.Mode)
	}
	if cfg.Postgres.Enabled {
		t.Error("postgres should be disabled")
	}
	if cfg.Engine.TickInterval.Duration != 10*time.Second {
		t.Errorf("tick_interval = %v, want 10s", cfg.Engine.TickInterval.Duration)
	}
	if cfg.RateLimit.Requests != 500 || cfg.RateLimit.Window.Duration != 30*time.Second {
		t.Errorf("rate limit = %d/%v, want 500/30s", cfg.RateLimit.Requests, cfg.RateLimit.Window.Duration)
	}
	// Untouched sections keep their defaults.
	if cfg.Redis.Addr != "localhost:6379" {
		t.Errorf("redis addr = %q, want default", cfg.Redis.Addr)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("merged config should validate: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TRADECORE_MODE", "backtest")
	t.Setenv("TRADECORE_POSTGRES_PASSWORD", "hunter2")
	t.Setenv("TRADECORE_ENGINE_ENABLED", "false")
	t.Setenv("TRADECORE_ENGINE_EXIT_PRIORITY", "take_profit, stop_loss")
	t.Setenv("TRADECORE_RATE_LIMIT_WINDOW", "2m")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	if cfg.Mode != "backtest" {
		t.Errorf("mode = %q, want backtest", cfg.Mode)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Errorf("password not overridden")
	}
	if cfg.Engine.Enabled {
		t.Error("engine should be disabled")
	}
	want := []string{"take_profit", "stop_loss"}
	if len(cfg.Engine.ExitPriority) != len(want) {
		t.Fatalf("exit priority = %v, want %v", cfg.Engine.ExitPriority, want)
	}
	for i := range want {
		if cfg.Engine.ExitPriority[i] != want[i] {
			t.Errorf("exit priority[%d] = %q, want %q", i, cfg.Engine.ExitPriority[i], want[i])
		}
	}
	if cfg.RateLimit.Window.Duration != 2*time.Minute {
		t.Errorf("window = %v, want 2m", cfg.RateLimit.Window.Duration)
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.Password = "secret"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Redis.Password = "secret"
	cfg.S3.AccessKey = "AKIA"
	cfg.S3.SecretKey = "secret"
	cfg.Server.APIKey = "secret"
	cfg.Notify.TelegramToken = "123:abc"
	cfg.Notify.DiscordWebhookURL = "https://discord.com/api/webhooks/1/tok"

	red := RedactedConfig(&cfg)

	for name, v := range map[string]string{
		"postgres password": red.Postgres.Password,
		"postgres dsn":      red.Postgres.DSN,
		"redis password":    red.Redis.Password,
		"s3 secret key":     red.S3.SecretKey,
		"server api key":    red.Server.APIKey,
		"telegram token":    red.Notify.TelegramToken,
		"discord webhook":   red.Notify.DiscordWebhookURL,
	} {
		if strings.Contains(v, "secret") || strings.Contains(v, "tok") || v == "postgres://u:p@h/db" {
			t.Errorf("%s not redacted: %q", name, v)
		}
	}
	// The original must be untouched.
	if cfg.Postgres.Password != "secret" {
		t.Error("redaction mutated the source config")
	}
}
