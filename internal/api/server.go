package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/audit"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/fleet"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/config"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/database"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/logging"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/mqtt"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/provisioning"
)

// EventPublisher publishes lifecycle events to the message broker. A nil
// publisher silently drops events; the API stays usable without MQTT.
type EventPublisher interface {
	PublishLifecycle(event mqtt.LifecycleEvent) error
}

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.API
	Security     config.Security
	Logger       *logging.Logger
	DB           *database.DB
	Devices      fleet.DeviceRepository
	Gateways     fleet.GatewayRepository
	Fleet        *fleet.Service
	Configs      netconfig.Repository
	NetConfig    *netconfig.Service
	Coordinator  *provisioning.Coordinator
	ProvisionLog provisioning.LogRepository
	Jobs         *deprovision.Repository
	Reconciler   *deprovision.Reconciler
	Audit        audit.Repository
	Events       EventPublisher
	Version      string
}

// Server is the HTTP API server for FreshTrack Pro.
//
// It manages the HTTP listener, routes, and middleware. The server is
// created with New() and started with Start().
type Server struct {
	cfg          config.API
	secCfg       config.Security
	logger       *logging.Logger
	db           *database.DB
	devices      fleet.DeviceRepository
	gateways     fleet.GatewayRepository
	fleet        *fleet.Service
	configs      netconfig.Repository
	netcfg       *netconfig.Service
	coordinator  *provisioning.Coordinator
	provisionLog provisioning.LogRepository
	jobs         *deprovision.Repository
	reconciler   *deprovision.Reconciler
	audit        audit.Repository
	events       EventPublisher
	version      string
	server       *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil || deps.Gateways == nil {
		return nil, fmt.Errorf("fleet repositories are required")
	}
	if deps.Fleet == nil {
		return nil, fmt.Errorf("fleet service is required")
	}
	if deps.Configs == nil {
		return nil, fmt.Errorf("netconfig repository is required")
	}
	if deps.NetConfig == nil {
		return nil, fmt.Errorf("netconfig service is required")
	}
	if deps.Coordinator == nil {
		return nil, fmt.Errorf("provisioning coordinator is required")
	}
	if deps.ProvisionLog == nil {
		return nil, fmt.Errorf("provisioning log repository is required")
	}
	if deps.Jobs == nil {
		return nil, fmt.Errorf("job repository is required")
	}
	if deps.Audit == nil {
		return nil, fmt.Errorf("audit repository is required")
	}
	// Reconciler and Events are optional; orphan routes return 503
	// without the reconciler, and a nil publisher drops lifecycle events.

	return &Server{
		cfg:          deps.Config,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		db:           deps.DB,
		devices:      deps.Devices,
		gateways:     deps.Gateways,
		fleet:        deps.Fleet,
		configs:      deps.Configs,
		netcfg:       deps.NetConfig,
		coordinator:  deps.Coordinator,
		provisionLog: deps.ProvisionLog,
		jobs:         deps.Jobs,
		reconciler:   deps.Reconciler,
		audit:        deps.Audit,
		events:       deps.Events,
		version:      deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// The listener runs in a background goroutine; the server is stopped
// with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
