package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

const validSecret = "0123456789abcdef0123456789abcdef"

func TestLoad(t *testing.T) {
	t.Run("loads values from file", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
registry:
  identity_url: https://identity.example.com
  regional_url: https://regional.example.com
  regional_host: regional.example.com
worker:
  max_attempts: 7
security:
  jwt:
    secret: `+validSecret+`
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
		}
		if cfg.Registry.IdentityURL != "https://identity.example.com" {
			t.Errorf("Registry.IdentityURL = %q", cfg.Registry.IdentityURL)
		}
		if cfg.Worker.MaxAttempts != 7 {
			t.Errorf("Worker.MaxAttempts = %d, want 7", cfg.Worker.MaxAttempts)
		}
	})

	t.Run("applies defaults for missing values", func(t *testing.T) {
		path := writeConfigFile(t, `
security:
  jwt:
    secret: `+validSecret+`
`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.API.Port != 8090 {
			t.Errorf("API.Port = %d, want default 8090", cfg.API.Port)
		}
		if cfg.Registry.FrequencyPlan != "US_902_928_FSB_2" {
			t.Errorf("Registry.FrequencyPlan = %q", cfg.Registry.FrequencyPlan)
		}
		if !cfg.Database.WALMode {
			t.Error("Database.WALMode = false, want default true")
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfigFile(t, `
registry:
  api_key: file-key
security:
  jwt:
    secret: `+validSecret+`
`)
		t.Setenv("FRESHTRACK_REGISTRY_API_KEY", "env-key")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Registry.APIKey != "env-key" {
			t.Errorf("Registry.APIKey = %q, want env override", cfg.Registry.APIKey)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Security.JWT.Secret = validSecret
		return cfg
	}

	t.Run("default config with secret is valid", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() error = %v", err)
		}
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "" },
			wantMsg: "security.jwt.secret is required",
		},
		{
			name:    "short jwt secret",
			mutate:  func(c *Config) { c.Security.JWT.Secret = "short" },
			wantMsg: "at least 32 characters",
		},
		{
			name:    "missing identity url",
			mutate:  func(c *Config) { c.Registry.IdentityURL = "" },
			wantMsg: "registry.identity_url is required",
		},
		{
			name:    "max backoff below base backoff",
			mutate:  func(c *Config) { c.Worker.MaxBackoff = 1 },
			wantMsg: "worker.max_backoff",
		},
		{
			name:    "invalid port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantMsg: "api.port",
		},
		{
			name:    "invalid qos",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantMsg: "mqtt.qos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Validate() error = %q, want substring %q", err, tt.wantMsg)
			}
		})
	}
}
