package config

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Server.Port != 6464 {
		t.Errorf("Port = %d, want 6464", cfg.Server.Port)
	}
	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Host = %q, want 127.0.0.1", cfg.Server.Host)
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		t.Errorf("StorageEngine = %q, want sqlite", cfg.Storage.StorageEngine)
	}
	if cfg.Engine.MinOfflineDuration != 5*time.Minute {
		t.Errorf("MinOfflineDuration = %v, want 5m", cfg.Engine.MinOfflineDuration)
	}
	if cfg.Engine.IdleWindow != 6*time.Hour {
		t.Errorf("IdleWindow = %v, want 6h", cfg.Engine.IdleWindow)
	}
	if cfg.Security.SecurityMode != "development" {
		t.Errorf("SecurityMode = %q, want development", cfg.Security.SecurityMode)
	}
	if cfg.Security.RateLimitRPS != 10 || cfg.Security.RateLimitBurst != 20 {
		t.Errorf("rate limit = %v/%d, want 10/20",
			cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("CONFIDANT_PORT", "9000")
	t.Setenv("CONFIDANT_STORAGE_ENGINE", "memory")
	t.Setenv("CONFIDANT_MIN_OFFLINE_DURATION", "10m")
	t.Setenv("CONFIDANT_RATE_LIMIT_RPS", "2.5")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Storage.StorageEngine != "memory" {
		t.Errorf("StorageEngine = %q, want memory", cfg.Storage.StorageEngine)
	}
	if cfg.Engine.MinOfflineDuration != 10*time.Minute {
		t.Errorf("MinOfflineDuration = %v, want 10m", cfg.Engine.MinOfflineDuration)
	}
	if cfg.Security.RateLimitRPS != 2.5 {
		t.Errorf("RateLimitRPS = %v, want 2.5", cfg.Security.RateLimitRPS)
	}
}

func TestLoadConfigMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CONFIDANT_PORT", "not-a-number")
	t.Setenv("CONFIDANT_IDLE_WINDOW", "whenever")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Server.Port != 6464 {
		t.Errorf("Port = %d, want default on malformed value", cfg.Server.Port)
	}
	if cfg.Engine.IdleWindow != 6*time.Hour {
		t.Errorf("IdleWindow = %v, want default on malformed value", cfg.Engine.IdleWindow)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name  string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = 0 }},
		{"unknown engine", func(c *Config) { c.Storage.StorageEngine = "etcd" }},
		{"postgres without dsn", func(c *Config) {
			c.Storage.StorageEngine = "postgres"
			c.Storage.PostgresDSN = ""
		}},
		{"production without token", func(c *Config) {
			c.Security.SecurityMode = "production"
			c.Security.APIToken = ""
		}},
		{"zero rate limit", func(c *Config) { c.Security.RateLimitRPS = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig failed: %v", err)
			}
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
