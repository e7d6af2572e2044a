package provisioning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/netconfig"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// Logger is the minimal logging interface the coordinator needs.
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

// registryAPI is the slice of the registry client the coordinator uses.
type registryAPI interface {
	GetApplication(ctx context.Context, appID string) (*registry.Response, error)
	CreateApplication(ctx context.Context, owner registry.Owner, app registry.Application) (*registry.Response, error)
	SetWebhook(ctx context.Context, appID string, hook registry.Webhook) (*registry.Response, error)
	CreateDevice(ctx context.Context, appID string, dev registry.EndDevice) (*registry.Response, error)
	CreateGateway(ctx context.Context, owner registry.Owner, gw registry.Gateway) (*registry.Response, error)
	CreateGatewayAPIKey(ctx context.Context, gatewayID, name string, rights []string) (*registry.APIKey, *registry.Response, error)
}

// webhookID names the single ingest webhook each application carries.
const webhookID = "freshtrack-ingest"

// Coordinator step names as they appear in the provisioning log.
const (
	stepEnsureApplication = "ensure_application"
	stepEnsureWebhook     = "ensure_webhook"
)

// EnsureResult reports the coordinator's progress. On a fatal error the
// checkpoint flags still reflect whatever was persisted, so callers see
// partial progress rather than all-or-nothing.
type EnsureResult struct {
	OrgID              string `json:"org_id"`
	ApplicationID      string `json:"application_id"`
	ApplicationCreated bool   `json:"application_created"`
	WebhookConfigured  bool   `json:"webhook_configured"`
	Completed          bool   `json:"completed"`
}

// Coordinator brings an organisation's registry application and webhook
// into existence idempotently.
type Coordinator struct {
	registry       registryAPI
	configs        netconfig.Repository
	log            LogRepository
	owner          registry.Owner
	webhookBaseURL string
	logger         Logger
}

// NewCoordinator creates a coordinator. owner is the registry account
// applications are created under; webhookBaseURL is where the registry
// delivers uplinks.
func NewCoordinator(reg registryAPI, configs netconfig.Repository, log LogRepository, owner registry.Owner, webhookBaseURL string) *Coordinator {
	return &Coordinator{
		registry:       reg,
		configs:        configs,
		log:            log,
		owner:          owner,
		webhookBaseURL: strings.TrimRight(webhookBaseURL, "/"),
		logger:         noopLogger{},
	}
}

// SetLogger sets the logger for the coordinator.
func (c *Coordinator) SetLogger(logger Logger) {
	c.logger = logger
}

// ApplicationIDForOrg derives the deterministic registry application ID
// for an organisation. Determinism is what makes lookup-before-create
// and conflict-as-success safe: every invocation computes the same ID.
func ApplicationIDForOrg(orgID string) string {
	return "ft-app-" + slugify(orgID)
}

// slugify reduces a string to the lowercase alphanumeric-and-hyphen
// form registry identifiers allow.
func slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteRune('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// EnsureApplication runs the two-step ensure flow: application, then
// webhook. Each step is skipped when its checkpoint flag is already
// set, and each success persists its checkpoint immediately so a crash
// between steps never repeats completed work. Conflicts from the
// registry are success: the resource exists, which is the goal.
func (c *Coordinator) EnsureApplication(ctx context.Context, orgID string) (*EnsureResult, error) {
	cfg, err := c.configs.Get(ctx, orgID)
	if errors.Is(err, netconfig.ErrConfigNotFound) {
		return nil, ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("loading org config: %w", err)
	}

	appID := ApplicationIDForOrg(orgID)
	if cfg.ApplicationID != nil && *cfg.ApplicationID != "" {
		appID = *cfg.ApplicationID
	}

	result := &EnsureResult{
		OrgID:              orgID,
		ApplicationID:      appID,
		ApplicationCreated: cfg.ApplicationCreated,
		WebhookConfigured:  cfg.WebhookConfigured,
	}

	if cfg.ApplicationCreated {
		c.logStep(ctx, orgID, stepEnsureApplication, StepSkipped, "application checkpoint already set", 0, nil, nil)
	} else {
		if err := c.ensureApplicationStep(ctx, orgID, appID); err != nil {
			return result, err
		}
		result.ApplicationCreated = true
	}

	if cfg.WebhookConfigured {
		c.logStep(ctx, orgID, stepEnsureWebhook, StepSkipped, "webhook checkpoint already set", 0, nil, nil)
	} else {
		if err := c.ensureWebhookStep(ctx, orgID, appID); err != nil {
			return result, err
		}
		result.WebhookConfigured = true
	}

	result.Completed = true
	return result, nil
}

func (c *Coordinator) ensureApplicationStep(ctx context.Context, orgID, appID string) error {
	c.logStep(ctx, orgID, stepEnsureApplication, StepStarted, "looking up application "+appID, 0, nil, nil)
	start := time.Now()

	endpoint := "applications/" + appID
	resp, err := c.registry.GetApplication(ctx, appID)
	switch {
	case err == nil:
		// Already exists.
	case registry.IsNotFound(err):
		endpoint = "applications (create)"
		resp, err = c.registry.CreateApplication(ctx, c.owner, registry.Application{
			ID:   appID,
			Name: "FreshTrack " + orgID,
		})
		if err != nil && registry.IsConflict(err) {
			// Someone else created it between lookup and create. The
			// application exists, which is what we wanted.
			err = nil
		}
	}
	if err != nil {
		c.logFailure(ctx, orgID, stepEnsureApplication, err, time.Since(start).Milliseconds(), resp, &endpoint)
		if registry.IsAuth(err) {
			return err
		}
		return fmt.Errorf("%w: ensure application: %v", ErrStepFailed, err)
	}

	if err := c.configs.SetApplicationCreated(ctx, orgID, appID); err != nil {
		return fmt.Errorf("persisting application checkpoint: %w", err)
	}
	c.logStep(ctx, orgID, stepEnsureApplication, StepSuccess, "application "+appID+" ensured", time.Since(start).Milliseconds(), resp, &endpoint)
	c.logger.Info("registry application ensured", "org_id", orgID, "application_id", appID)
	return nil
}

func (c *Coordinator) ensureWebhookStep(ctx context.Context, orgID, appID string) error {
	c.logStep(ctx, orgID, stepEnsureWebhook, StepStarted, "configuring ingest webhook", 0, nil, nil)
	start := time.Now()

	endpoint := "as/webhooks/" + appID + "/" + webhookID
	resp, err := c.registry.SetWebhook(ctx, appID, registry.Webhook{
		WebhookID:  webhookID,
		BaseURL:    c.webhookBaseURL + "/ingest/" + orgID,
		Format:     "json",
		UplinkPath: "/uplink",
	})
	if err != nil && registry.IsConflict(err) {
		err = nil
	}
	if err != nil {
		c.logFailure(ctx, orgID, stepEnsureWebhook, err, time.Since(start).Milliseconds(), resp, &endpoint)
		if registry.IsAuth(err) {
			return err
		}
		return fmt.Errorf("%w: ensure webhook: %v", ErrStepFailed, err)
	}

	if err := c.configs.SetWebhookConfigured(ctx, orgID); err != nil {
		return fmt.Errorf("persisting webhook checkpoint: %w", err)
	}
	c.logStep(ctx, orgID, stepEnsureWebhook, StepSuccess, "ingest webhook configured", time.Since(start).Milliseconds(), resp, &endpoint)
	c.logger.Info("registry webhook ensured", "org_id", orgID, "application_id", appID)
	return nil
}

// logStep appends one provisioning log entry. Log failures are reported
// to the logger but never fail the step; losing a log line is better
// than aborting provisioning halfway.
func (c *Coordinator) logStep(ctx context.Context, orgID, step, status, message string, durationMS int64, resp *registry.Response, endpoint *string) {
	entry := &LogEntry{
		OrgID:      orgID,
		Step:       step,
		Status:     status,
		Message:    message,
		DurationMS: durationMS,
		Endpoint:   endpoint,
	}
	if resp != nil {
		httpStatus := resp.Status
		entry.HTTPStatus = &httpStatus
		if resp.RequestID != "" {
			requestID := resp.RequestID
			entry.RequestID = &requestID
		}
	}
	if err := c.log.Append(ctx, entry); err != nil {
		c.logger.Error("failed to append provisioning log", "error", err, "step", step)
	}
}

// logFailure appends a failed step entry with the classified error
// category and the raw response body retained for diagnostics.
func (c *Coordinator) logFailure(ctx context.Context, orgID, step string, stepErr error, durationMS int64, resp *registry.Response, endpoint *string) {
	entry := &LogEntry{
		OrgID:      orgID,
		Step:       step,
		Status:     StepFailed,
		Message:    stepErr.Error(),
		DurationMS: durationMS,
		Endpoint:   endpoint,
	}
	category := errorCategory(stepErr)
	entry.ErrorCategory = &category
	if resp != nil {
		httpStatus := resp.Status
		entry.HTTPStatus = &httpStatus
		if resp.RequestID != "" {
			requestID := resp.RequestID
			entry.RequestID = &requestID
		}
		if len(resp.Body) > 0 {
			body := string(resp.Body)
			entry.ResponseBody = &body
		}
	}
	if err := c.log.Append(ctx, entry); err != nil {
		c.logger.Error("failed to append provisioning log", "error", err, "step", step)
	}
}
