// FreshTrack Pro - LoRaWAN Provisioning Control Plane
//
// This is the main entry point for the FreshTrack provisioning core. It
// keeps each customer organisation's slice of the external LoRaWAN
// registry in step with the locally tracked fleet: applications and
// webhooks are created idempotently, archived hardware is cleaned up by
// a retrying background worker, and orphaned registry records can be
// reconciled on demand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/getdatasurge/freshtrack-pro-sub011/migrations"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/api"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/config"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/database"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/influxdb"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/logging"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/mqtt"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting FreshTrack provisioning core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Repositories
	devices := fleet.NewSQLiteDeviceRepository(db.DB)
	gateways := fleet.NewSQLiteGatewayRepository(db.DB)
	configs := netconfig.NewSQLiteRepository(db.DB)
	stepLog := provisioning.NewSQLiteLogRepository(db.DB)
	jobs := deprovision.NewRepository(db.DB)
	jobs.SetDefaultMaxAttempts(cfg.Worker.MaxAttempts)
	auditLog := audit.NewSQLiteRepository(db.DB)

	// Registry client
	reg := registry.New(registry.Config{
		IdentityURL:  cfg.Registry.IdentityURL,
		RegionalURL:  cfg.Registry.RegionalURL,
		RegionalHost: cfg.Registry.RegionalHost,
		APIKey:       cfg.Registry.APIKey,
		Timeout:      cfg.RegistryTimeout(),
		UserAgent:    "freshtrack-provisioner/" + version,
	})
	log.Info("registry client configured",
		"identity", cfg.Registry.IdentityURL,
		"regional", cfg.Registry.RegionalURL,
	)

	// Provisioning coordinator
	ownerType := registry.OwnerUser
	if cfg.Registry.OwnerType == string(registry.OwnerOrganization) {
		ownerType = registry.OwnerOrganization
	}
	coordinator := provisioning.NewCoordinator(reg, configs, stepLog,
		registry.Owner{Type: ownerType, ID: cfg.Registry.OwnerID},
		cfg.Registry.WebhookBaseURL)
	coordinator.SetLogger(log)

	// Configuration lifecycle service
	netcfgSvc := netconfig.NewService(configs, reg)
	netcfgSvc.SetLogger(log)

	// Fleet service
	fleetSvc := fleet.NewService(devices, gateways, jobs)
	fleetSvc.SetLogger(log)

	// Connect to MQTT broker (optional, lifecycle events)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional, provisioning metrics)
	var metrics *influxdb.Recorder
	if cfg.InfluxDB.Enabled {
		metrics, err = influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			metrics.Close()
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Deprovision worker
	worker := deprovision.NewWorker(jobs, reg, deprovision.WorkerOptions{
		PollInterval: cfg.WorkerPollInterval(),
		Concurrency:  cfg.Worker.Concurrency,
		JobTimeout:   cfg.WorkerJobTimeout(),
		BaseBackoff:  cfg.WorkerBaseBackoff(),
		MaxBackoff:   cfg.WorkerMaxBackoff(),
	})
	worker.SetLogger(log)
	worker.SetStepLog(&stepLogAdapter{repo: stepLog})
	if mqttClient != nil {
		worker.SetEventPublisher(mqttClient)
	}
	if metrics != nil {
		worker.SetMetrics(metrics)
	}
	if cfg.Worker.Enabled {
		worker.Start(ctx)
		defer func() {
			log.Info("waiting for in-flight jobs")
			worker.Wait()
		}()
		log.Info("deprovision worker started",
			"poll_interval", cfg.WorkerPollInterval(),
			"concurrency", cfg.Worker.Concurrency,
		)
	} else {
		log.Info("deprovision worker disabled")
	}

	// Orphan reconciler
	reconciler := deprovision.NewReconciler(reg, devices, jobs)

	// API server
	deps := api.Deps{
		Config:       cfg.API,
		Security:     cfg.Security,
		Logger:       log,
		DB:           db,
		Devices:      devices,
		Gateways:     gateways,
		Fleet:        fleetSvc,
		Configs:      configs,
		NetConfig:    netcfgSvc,
		Coordinator:  coordinator,
		ProvisionLog: stepLog,
		Jobs:         jobs,
		Reconciler:   reconciler,
		Audit:        auditLog,
		Version:      version,
	}
	if mqttClient != nil {
		deps.Events = mqttClient
	}
	server, err := api.New(deps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if startErr := server.Start(ctx); startErr != nil {
		return fmt.Errorf("starting API server: %w", startErr)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Verify infrastructure is healthy before declaring readiness
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order:
	// 1. API server
	// 2. Worker drain
	// 3. InfluxDB / MQTT (if enabled)
	// 4. Database

	log.Info("FreshTrack provisioning core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses FRESHTRACK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("FRESHTRACK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.HealthCheck(checkCtx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if mqttClient != nil {
		if err := mqttClient.HealthCheck(checkCtx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}
	return nil
}

// stepLogAdapter records worker sub-steps into the shared provisioning
// log so deprovision history reads the same as provisioning history.
type stepLogAdapter struct {
	repo provisioning.LogRepository
}

func (a *stepLogAdapter) Record(ctx context.Context, e deprovision.StepLogEntry) error {
	entry := &provisioning.LogEntry{
		OrgID:      e.OrgID,
		Step:       e.Step,
		Status:     e.Status,
		Message:    e.Message,
		DurationMS: e.DurationMS,
	}
	if e.RequestID != "" {
		entry.RequestID = &e.RequestID
	}
	if e.HTTPStatus != 0 {
		entry.HTTPStatus = &e.HTTPStatus
	}
	if e.ResponseBody != "" {
		entry.ResponseBody = &e.ResponseBody
	}
	if e.ErrorCategory != "" {
		entry.ErrorCategory = &e.ErrorCategory
	}
	if e.Endpoint != "" {
		entry.Endpoint = &e.Endpoint
	}
	return a.repo.Append(ctx, entry)
}
