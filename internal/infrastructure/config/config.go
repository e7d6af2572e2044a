package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for FreshTrack Pro.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database Database `yaml:"database"`
	Registry Registry `yaml:"registry"`
	Worker   Worker   `yaml:"worker"`
	API      API      `yaml:"api"`
	MQTT     MQTT     `yaml:"mqtt"`
	InfluxDB InfluxDB `yaml:"influxdb"`
	Logging  Logging  `yaml:"logging"`
	Security Security `yaml:"security"`
}

// Database contains SQLite database settings.
type Database struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Registry contains connection settings for the external LoRaWAN device registry.
//
// The registry federates identity and traffic handling across two services:
// the identity server owns the global application/device/gateway registry,
// while the regional server handles per-region traffic (webhooks, network,
// application and join subsystems). Operations must be routed to the correct
// service; see internal/registry.
type Registry struct {
	// IdentityURL is the base URL of the global identity server.
	IdentityURL string `yaml:"identity_url"`

	// RegionalURL is the base URL of the regional data-plane server.
	RegionalURL string `yaml:"regional_url"`

	// RegionalHost is the host registry-side gateway records must point
	// their gateway_server_address at. Usually the host part of RegionalURL.
	RegionalHost string `yaml:"regional_host"`

	// APIKey is the bearer credential for registry calls. Override with
	// FRESHTRACK_REGISTRY_API_KEY in production.
	APIKey string `yaml:"api_key"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`

	// WebhookBaseURL is the public base URL the registry delivers uplink
	// webhooks to (our ingest endpoint, outside this core).
	WebhookBaseURL string `yaml:"webhook_base_url"`

	// OwnerType and OwnerID identify the registry account applications
	// are created under: "user" or "org", plus its identifier.
	OwnerType string `yaml:"owner_type"`
	OwnerID   string `yaml:"owner_id"`

	// FrequencyPlan is the default frequency plan for gateway registration.
	FrequencyPlan string `yaml:"frequency_plan"`
}

// Worker contains deprovision worker settings.
type Worker struct {
	// Enabled starts the background deprovision worker.
	Enabled bool `yaml:"enabled"`

	// PollInterval is how often the worker looks for claimable jobs (seconds).
	PollInterval int `yaml:"poll_interval"`

	// Concurrency is the number of jobs processed in parallel.
	Concurrency int `yaml:"concurrency"`

	// MaxAttempts is the attempt budget before a job is blocked.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the initial retry backoff in seconds.
	BaseBackoff int `yaml:"base_backoff"`

	// MaxBackoff caps the retry backoff in seconds.
	MaxBackoff int `yaml:"max_backoff"`

	// JobTimeout bounds a single job execution in seconds.
	JobTimeout int `yaml:"job_timeout"`
}

// API contains HTTP API server settings.
type API struct {
	Host     string      `yaml:"host"`
	Port     int         `yaml:"port"`
	TLS      TLS         `yaml:"tls"`
	Timeouts APITimeouts `yaml:"timeouts"`
	CORS     CORS        `yaml:"cors"`
}

// TLS contains TLS certificate settings.
type TLS struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeouts contains HTTP timeout settings (seconds).
type APITimeouts struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORS contains Cross-Origin Resource Sharing settings.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTT contains broker settings for lifecycle event publishing.
type MQTT struct {
	Enabled bool       `yaml:"enabled"`
	Broker  MQTTBroker `yaml:"broker"`
	Auth    MQTTAuth   `yaml:"auth"`
	QoS     int        `yaml:"qos"`
	TopicNS string     `yaml:"topic_namespace"`
}

// MQTTBroker contains MQTT broker connection details.
type MQTTBroker struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuth contains MQTT authentication credentials.
type MQTTAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDB contains settings for the optional metrics recorder.
type InfluxDB struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Token   string `yaml:"token"`
	Org     string `yaml:"org"`
	Bucket  string `yaml:"bucket"`
}

// Logging contains logging settings.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Security contains API security settings.
type Security struct {
	JWT JWT `yaml:"jwt"`
}

// JWT contains bearer token settings for the HTTP API.
type JWT struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: FRESHTRACK_SECTION_KEY
// For example: FRESHTRACK_DATABASE_PATH, FRESHTRACK_REGISTRY_API_KEY
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: Database{
			Path:        "./data/freshtrack.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Registry: Registry{
			IdentityURL:   "https://eu1.cloud.thethings.network",
			RegionalURL:   "https://nam1.cloud.thethings.network",
			RegionalHost:  "nam1.cloud.thethings.network",
			Timeout:       30,
			FrequencyPlan: "US_902_928_FSB_2",
			OwnerType:     "user",
			OwnerID:       "freshtrack-platform",
		},
		Worker: Worker{
			Enabled:      true,
			PollInterval: 15,
			Concurrency:  2,
			MaxAttempts:  5,
			BaseBackoff:  30,
			MaxBackoff:   3600,
			JobTimeout:   120,
		},
		API: API{
			Host: "0.0.0.0",
			Port: 8090,
			Timeouts: APITimeouts{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		MQTT: MQTT{
			Broker: MQTTBroker{
				Host:     "localhost",
				Port:     1883,
				ClientID: "freshtrack-core",
			},
			QoS:     1,
			TopicNS: "freshtrack",
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: FRESHTRACK_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("FRESHTRACK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Registry - the API key should always come from the environment
	if v := os.Getenv("FRESHTRACK_REGISTRY_API_KEY"); v != "" {
		cfg.Registry.APIKey = v
	}
	if v := os.Getenv("FRESHTRACK_REGISTRY_IDENTITY_URL"); v != "" {
		cfg.Registry.IdentityURL = v
	}
	if v := os.Getenv("FRESHTRACK_REGISTRY_REGIONAL_URL"); v != "" {
		cfg.Registry.RegionalURL = v
	}

	// Worker
	if v := os.Getenv("FRESHTRACK_WORKER_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Worker.MaxAttempts = n
		}
	}

	// API
	if v := os.Getenv("FRESHTRACK_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// MQTT
	if v := os.Getenv("FRESHTRACK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("FRESHTRACK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("FRESHTRACK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("FRESHTRACK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security - JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("FRESHTRACK_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Registry.IdentityURL == "" {
		errs = append(errs, "registry.identity_url is required")
	}
	if c.Registry.RegionalURL == "" {
		errs = append(errs, "registry.regional_url is required")
	}
	if c.Registry.Timeout < 1 {
		errs = append(errs, "registry.timeout must be at least 1 second")
	}

	if c.Worker.MaxAttempts < 1 {
		errs = append(errs, "worker.max_attempts must be at least 1")
	}
	if c.Worker.BaseBackoff < 1 {
		errs = append(errs, "worker.base_backoff must be at least 1 second")
	}
	if c.Worker.MaxBackoff < c.Worker.BaseBackoff {
		errs = append(errs, "worker.max_backoff must not be less than worker.base_backoff")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// The API authenticates callers with bearer tokens; an empty or weak
	// secret would allow forged permission claims on provisioning endpoints.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set FRESHTRACK_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// RegistryTimeout returns the registry request timeout as a Duration.
func (c *Config) RegistryTimeout() time.Duration {
	return time.Duration(c.Registry.Timeout) * time.Second
}

// WorkerPollInterval returns the worker poll interval as a Duration.
func (c *Config) WorkerPollInterval() time.Duration {
	return time.Duration(c.Worker.PollInterval) * time.Second
}

// WorkerBaseBackoff returns the initial retry backoff as a Duration.
func (c *Config) WorkerBaseBackoff() time.Duration {
	return time.Duration(c.Worker.BaseBackoff) * time.Second
}

// WorkerMaxBackoff returns the backoff cap as a Duration.
func (c *Config) WorkerMaxBackoff() time.Duration {
	return time.Duration(c.Worker.MaxBackoff) * time.Second
}

// WorkerJobTimeout returns the per-job execution bound as a Duration.
func (c *Config) WorkerJobTimeout() time.Duration {
	return time.Duration(c.Worker.JobTimeout) * time.Second
}

// ReadTimeout returns the API read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// WriteTimeout returns the API write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// IdleTimeout returns the API idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
