package fleet

import (
	"context"
	"fmt"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/deprovision"
)

// Logger is the minimal logging interface the service needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// JobQueue is the slice of the deprovision queue the archival flow
// needs.
type JobQueue interface {
	Enqueue(ctx context.Context, p deprovision.EnqueueParams) (*deprovision.Job, error)
}

// Service owns entity lifecycle: creation, provisioned-marking, and
// archival with registry cleanup.
type Service struct {
	devices  DeviceRepository
	gateways GatewayRepository
	jobs     JobQueue
	logger   Logger
}

// NewService creates a fleet service.
func NewService(devices DeviceRepository, gateways GatewayRepository, jobs JobQueue) *Service {
	return &Service{
		devices:  devices,
		gateways: gateways,
		jobs:     jobs,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	s.logger = logger
}

// ArchiveDevice retires a device. If it was provisioned, a deprovision
// job is enqueued and returned; the local archive succeeds regardless
// so inventory state never blocks on the registry.
func (s *Service) ArchiveDevice(ctx context.Context, orgID, deviceID string) (*deprovision.Job, error) {
	device, err := s.devices.GetByID(ctx, orgID, deviceID)
	if err != nil {
		return nil, err
	}
	if device.Status == StatusArchived {
		return nil, ErrAlreadyArchived
	}

	if err := s.devices.SetStatus(ctx, orgID, deviceID, StatusArchived); err != nil {
		return nil, err
	}
	s.logger.Info("device archived", "org_id", orgID, "device_id", deviceID)

	if !device.Provisioned() {
		return nil, nil
	}

	var appID string
	if device.RegistryApplicationID != nil {
		appID = *device.RegistryApplicationID
	}
	job, err := s.jobs.Enqueue(ctx, deprovision.EnqueueParams{
		OrgID:                 orgID,
		EntityType:            deprovision.EntityDevice,
		EntityEUI:             device.DevEUI,
		RegistryID:            device.RegistryID,
		RegistryApplicationID: appID,
		Reason:                deprovision.ReasonArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing device deprovision: %w", err)
	}
	s.logger.Info("deprovision job enqueued",
		"org_id", orgID, "device_id", deviceID, "job_id", job.ID)
	return job, nil
}

// ArchiveGateway retires a gateway, enqueueing registry cleanup when it
// was provisioned.
func (s *Service) ArchiveGateway(ctx context.Context, orgID, gatewayID string) (*deprovision.Job, error) {
	gateway, err := s.gateways.GetByID(ctx, orgID, gatewayID)
	if err != nil {
		return nil, err
	}
	if gateway.Status == StatusArchived {
		return nil, ErrAlreadyArchived
	}

	if err := s.gateways.SetStatus(ctx, orgID, gatewayID, StatusArchived); err != nil {
		return nil, err
	}
	s.logger.Info("gateway archived", "org_id", orgID, "gateway_id", gatewayID)

	if !gateway.Provisioned() {
		return nil, nil
	}

	job, err := s.jobs.Enqueue(ctx, deprovision.EnqueueParams{
		OrgID:      orgID,
		EntityType: deprovision.EntityGateway,
		EntityEUI:  gateway.GatewayEUI,
		RegistryID: gateway.RegistryID,
		Reason:     deprovision.ReasonArchived,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueueing gateway deprovision: %w", err)
	}
	s.logger.Info("deprovision job enqueued",
		"org_id", orgID, "gateway_id", gatewayID, "job_id", job.ID)
	return job, nil
}

// MarkDeviceProvisioned stamps the registry identifiers on a device
// after successful registration.
func (s *Service) MarkDeviceProvisioned(ctx context.Context, orgID, deviceID, registryID, registryApplicationID string) error {
	return s.devices.MarkProvisioned(ctx, orgID, deviceID, registryID, registryApplicationID)
}

// MarkGatewayProvisioned stamps the registry identifier on a gateway.
func (s *Service) MarkGatewayProvisioned(ctx context.Context, orgID, gatewayID, registryID string) error {
	return s.gateways.MarkProvisioned(ctx, orgID, gatewayID, registryID)
}
