package deprovision

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/mqtt"
	"github.com/getdatasurge/freshtrack-pro-sub011/internal/registry"
)

// Logger is the minimal logging interface the worker needs.
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

// registryAPI is the slice of the registry client the worker uses.
type registryAPI interface {
	DeleteDevice(ctx context.Context, appID, deviceID string) (*registry.Response, error)
	DeleteDeviceNS(ctx context.Context, appID, deviceID string) (*registry.Response, error)
	DeleteDeviceAS(ctx context.Context, appID, deviceID string) (*registry.Response, error)
	DeleteDeviceJS(ctx context.Context, appID, deviceID string) (*registry.Response, error)
	GetGateway(ctx context.Context, gatewayID string) (*registry.Response, error)
	DeleteGateway(ctx context.Context, gatewayID string) (*registry.Response, error)
	PurgeGateway(ctx context.Context, gatewayID string) (*registry.Response, error)
}

// StepLogEntry is one worker sub-step record destined for the
// append-only provisioning log.
type StepLogEntry struct {
	OrgID         string
	Step          string
	Status        string
	Message       string
	DurationMS    int64
	RequestID     string
	HTTPStatus    int
	ResponseBody  string
	ErrorCategory string
	Endpoint      string
}

// StepLog receives worker sub-step records.
type StepLog interface {
	Record(ctx context.Context, entry StepLogEntry) error
}

// noopStepLog discards step records.
type noopStepLog struct{}

func (noopStepLog) Record(context.Context, StepLogEntry) error { return nil }

// EventPublisher publishes lifecycle events. Publishing is best-effort:
// errors are logged and never affect job state.
type EventPublisher interface {
	PublishLifecycle(event mqtt.LifecycleEvent) error
}

// MetricsRecorder records step durations and job outcomes.
type MetricsRecorder interface {
	RecordStepDuration(orgID, step, status string, duration time.Duration)
	RecordJobOutcome(orgID, entityType, status string, attempts int)
}

// Step statuses mirrored from the provisioning log.
const (
	stepStarted = "started"
	stepSuccess = "success"
	stepFailed  = "failed"
	stepSkipped = "skipped"
)

// WorkerOptions tune the worker loop.
type WorkerOptions struct {
	PollInterval time.Duration
	Concurrency  int
	JobTimeout   time.Duration
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
}

// Worker drains the deprovision queue against the registry.
type Worker struct {
	repo     *Repository
	registry registryAPI
	opts     WorkerOptions

	steps   StepLog
	events  EventPublisher
	metrics MetricsRecorder
	logger  Logger

	wg sync.WaitGroup
}

// NewWorker creates a worker with defaults for any unset option.
func NewWorker(repo *Repository, reg registryAPI, opts WorkerOptions) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 15 * time.Second
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if opts.BaseBackoff <= 0 {
		opts.BaseBackoff = 30 * time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = time.Hour
	}
	return &Worker{
		repo:     repo,
		registry: reg,
		opts:     opts,
		steps:    noopStepLog{},
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(logger Logger) { w.logger = logger }

// SetStepLog routes sub-step records to the provisioning log.
func (w *Worker) SetStepLog(log StepLog) { w.steps = log }

// SetEventPublisher enables lifecycle event publishing.
func (w *Worker) SetEventPublisher(p EventPublisher) { w.events = p }

// SetMetrics enables metric recording.
func (w *Worker) SetMetrics(m MetricsRecorder) { w.metrics = m }

// Start runs the poll loop until ctx is cancelled. In-flight jobs are
// given until their own timeout to finish; Wait blocks for them.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		sem := make(chan struct{}, w.opts.Concurrency)
		ticker := time.NewTicker(w.opts.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			// Drain everything claimable this tick, bounded by the
			// concurrency semaphore.
			for {
				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					return
				}

				job, err := w.repo.Claim(ctx)
				if err != nil {
					<-sem
					if !errors.Is(err, ErrNoClaimableJob) {
						w.logger.Error("claiming deprovision job", "error", err)
					}
					break
				}

				w.wg.Add(1)
				go func() {
					defer w.wg.Done()
					defer func() { <-sem }()
					w.process(ctx, job)
				}()
			}
		}
	}()
}

// Wait blocks until the poll loop and all in-flight jobs finish.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// ProcessOne claims and processes a single job synchronously. Returns
// ErrNoClaimableJob when the queue has nothing due.
func (w *Worker) ProcessOne(ctx context.Context) error {
	job, err := w.repo.Claim(ctx)
	if err != nil {
		return err
	}
	w.process(ctx, job)
	return nil
}

// process runs one claimed job to a terminal or retrying state. Job
// failures are isolated here; nothing escapes to the caller.
func (w *Worker) process(ctx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(ctx, w.opts.JobTimeout)
	defer cancel()

	w.publishEvent(mqtt.EventDeprovisionStarted, job, "")
	w.logger.Info("processing deprovision job",
		"job_id", job.ID, "org_id", job.OrgID,
		"entity_type", string(job.EntityType), "attempt", job.Attempts+1)

	var err error
	switch job.EntityType {
	case EntityDevice:
		err = w.processDevice(ctx, job)
	case EntityGateway:
		err = w.processGateway(ctx, job)
	default:
		err = fmt.Errorf("unknown entity type %q", job.EntityType)
	}

	if err == nil {
		if markErr := w.repo.MarkSucceeded(ctx, job.ID); markErr != nil {
			w.logger.Error("marking job succeeded", "job_id", job.ID, "error", markErr)
			return
		}
		w.publishEvent(mqtt.EventDeprovisionSucceeded, job, "")
		w.recordOutcome(job, string(StatusSucceeded), job.Attempts)
		return
	}

	jobErr := JobError{
		Code:    jobErrorCode(err),
		Message: err.Error(),
	}
	var te *registry.TransientError
	if errors.As(err, &te) && te.Body != "" {
		jobErr.Payload = te.Body
	}

	// Auth failures cannot improve with retries; fail immediately so an
	// operator sees them without burning through the attempt budget.
	if registry.IsAuth(err) {
		if markErr := w.repo.MarkPermanentlyFailed(ctx, job.ID, jobErr); markErr != nil {
			w.logger.Error("marking job failed", "job_id", job.ID, "error", markErr)
			return
		}
		w.publishEvent(mqtt.EventDeprovisionBlocked, job, err.Error())
		w.recordOutcome(job, string(StatusFailed), job.Attempts+1)
		return
	}

	retryAt := time.Now().Add(w.backoffFor(job.Attempts + 1))
	if markErr := w.repo.MarkFailed(ctx, job.ID, jobErr, retryAt); markErr != nil {
		w.logger.Error("marking job failed", "job_id", job.ID, "error", markErr)
		return
	}

	updated, getErr := w.repo.GetByID(ctx, job.ID)
	if getErr != nil {
		w.logger.Error("reloading job after failure", "job_id", job.ID, "error", getErr)
		return
	}
	if updated.Status == StatusBlocked {
		w.publishEvent(mqtt.EventDeprovisionBlocked, updated, err.Error())
	} else {
		w.publishEvent(mqtt.EventDeprovisionRetrying, updated, err.Error())
	}
	w.recordOutcome(updated, string(updated.Status), updated.Attempts)
}

// processDevice removes a device across the registry's four subsystems.
// Regional records go first; the identity record goes last because
// deleting it first would orphan the others. A missing record on any
// subsystem is skipped: the goal is absence, and absent is absent.
func (w *Worker) processDevice(ctx context.Context, job *Job) error {
	if job.RegistryID == nil || *job.RegistryID == "" {
		w.recordStep(ctx, job, "device_delete", stepSkipped, "no registry id recorded, nothing to remove", 0, nil)
		return nil
	}
	if job.RegistryApplicationID == "" {
		return fmt.Errorf("job %s has a registry id but no application id", job.ID)
	}

	appID := job.RegistryApplicationID
	deviceID := *job.RegistryID

	substeps := []struct {
		name string
		call func(context.Context, string, string) (*registry.Response, error)
	}{
		{"device_delete_ns", w.registry.DeleteDeviceNS},
		{"device_delete_as", w.registry.DeleteDeviceAS},
		{"device_delete_js", w.registry.DeleteDeviceJS},
		{"device_delete_identity", w.registry.DeleteDevice},
	}

	for _, step := range substeps {
		if err := w.runStep(ctx, job, step.name, func(ctx context.Context) (*registry.Response, error) {
			return step.call(ctx, appID, deviceID)
		}); err != nil {
			return err
		}
	}
	return nil
}

// processGateway removes a gateway: delete soft-removes the record,
// purge releases the EUI, and a final lookup verifies absence. The
// purge is what matters; a deleted-but-unpurged gateway still pins its
// EUI and blocks re-registration of the same hardware.
func (w *Worker) processGateway(ctx context.Context, job *Job) error {
	if job.RegistryID == nil || *job.RegistryID == "" {
		w.recordStep(ctx, job, "gateway_delete", stepSkipped, "no registry id recorded, nothing to remove", 0, nil)
		return nil
	}
	gatewayID := *job.RegistryID

	// Check first: if the registry has already forgotten the gateway the
	// remaining steps are pointless.
	start := time.Now()
	resp, err := w.registry.GetGateway(ctx, gatewayID)
	if registry.IsNotFound(err) {
		w.recordStep(ctx, job, "gateway_check", stepSkipped, "gateway already absent", time.Since(start).Milliseconds(), resp)
		return nil
	}
	if err != nil {
		w.recordFailedStep(ctx, job, "gateway_check", err, time.Since(start).Milliseconds(), resp)
		return err
	}
	w.recordStep(ctx, job, "gateway_check", stepSuccess, "gateway present", time.Since(start).Milliseconds(), resp)

	steps := []struct {
		name string
		call func(context.Context, string) (*registry.Response, error)
	}{
		{"gateway_delete", w.registry.DeleteGateway},
		{"gateway_purge", w.registry.PurgeGateway},
	}
	for _, step := range steps {
		if err := w.runStep(ctx, job, step.name, func(ctx context.Context) (*registry.Response, error) {
			return step.call(ctx, gatewayID)
		}); err != nil {
			return err
		}
	}

	// Verify the EUI is actually free.
	start = time.Now()
	resp, err = w.registry.GetGateway(ctx, gatewayID)
	switch {
	case registry.IsNotFound(err):
		w.recordStep(ctx, job, "gateway_verify", stepSuccess, "gateway absence confirmed", time.Since(start).Milliseconds(), resp)
		return nil
	case err != nil:
		w.recordFailedStep(ctx, job, "gateway_verify", err, time.Since(start).Milliseconds(), resp)
		return err
	default:
		verifyErr := fmt.Errorf("gateway %s still present after purge", gatewayID)
		w.recordFailedStep(ctx, job, "gateway_verify", verifyErr, time.Since(start).Milliseconds(), resp)
		return verifyErr
	}
}

// runStep executes one removal sub-step with started/outcome logging.
// Not-found and conflict responses count as skipped successes.
func (w *Worker) runStep(ctx context.Context, job *Job, name string, call func(context.Context) (*registry.Response, error)) error {
	w.recordStep(ctx, job, name, stepStarted, "", 0, nil)
	start := time.Now()

	resp, err := call(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		w.recordStep(ctx, job, name, stepSuccess, "removed", elapsed.Milliseconds(), resp)
		return nil
	case registry.IsNotFound(err), registry.IsConflict(err):
		w.recordStep(ctx, job, name, stepSkipped, "record already absent", elapsed.Milliseconds(), resp)
		return nil
	default:
		w.recordFailedStep(ctx, job, name, err, elapsed.Milliseconds(), resp)
		return fmt.Errorf("%s: %w", name, err)
	}
}

func (w *Worker) recordStep(ctx context.Context, job *Job, step, status, message string, durationMS int64, resp *registry.Response) {
	entry := StepLogEntry{
		OrgID:      job.OrgID,
		Step:       step,
		Status:     status,
		Message:    message,
		DurationMS: durationMS,
	}
	if resp != nil {
		entry.HTTPStatus = resp.Status
		entry.RequestID = resp.RequestID
	}
	if err := w.steps.Record(ctx, entry); err != nil {
		w.logger.Error("recording worker step", "step", step, "error", err)
	}
	if status != stepStarted {
		w.recordStepMetric(job, step, status, durationMS)
	}
}

func (w *Worker) recordFailedStep(ctx context.Context, job *Job, step string, stepErr error, durationMS int64, resp *registry.Response) {
	entry := StepLogEntry{
		OrgID:         job.OrgID,
		Step:          step,
		Status:        stepFailed,
		Message:       stepErr.Error(),
		DurationMS:    durationMS,
		ErrorCategory: jobErrorCode(stepErr),
	}
	if resp != nil {
		entry.HTTPStatus = resp.Status
		entry.RequestID = resp.RequestID
		entry.ResponseBody = string(resp.Body)
	}
	if err := w.steps.Record(ctx, entry); err != nil {
		w.logger.Error("recording worker step", "step", step, "error", err)
	}
	w.recordStepMetric(job, step, stepFailed, durationMS)
}

func (w *Worker) recordStepMetric(job *Job, step, status string, durationMS int64) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordStepDuration(job.OrgID, step, status, time.Duration(durationMS)*time.Millisecond)
}

func (w *Worker) recordOutcome(job *Job, status string, attempts int) {
	if w.metrics == nil {
		return
	}
	w.metrics.RecordJobOutcome(job.OrgID, string(job.EntityType), status, attempts)
}

func (w *Worker) publishEvent(eventType string, job *Job, errMsg string) {
	if w.events == nil {
		return
	}
	err := w.events.PublishLifecycle(mqtt.LifecycleEvent{
		Type:       eventType,
		OrgID:      job.OrgID,
		EntityType: string(job.EntityType),
		EntityEUI:  job.EntityEUI,
		JobID:      job.ID,
		Attempts:   job.Attempts,
		Error:      errMsg,
	})
	if err != nil {
		w.logger.Warn("publishing lifecycle event", "type", eventType, "error", err)
	}
}

// backoffFor returns the delay before the given attempt number retries:
// exponential growth from the base, capped, with ±10% jitter so a burst
// of failures does not resynchronise into a thundering herd.
func (w *Worker) backoffFor(attempt int) time.Duration {
	backoff := w.opts.BaseBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if backoff >= w.opts.MaxBackoff {
			backoff = w.opts.MaxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/5+1)) - backoff/10
	return backoff + jitter
}

// jobErrorCode buckets an error into a stable last_error_code value.
func jobErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case registry.IsAuth(err):
		return "AUTH"
	case registry.IsTransient(err):
		return "TRANSIENT"
	case registry.IsNotFound(err):
		return "NOT_FOUND"
	case registry.IsConflict(err):
		return "CONFLICT"
	default:
		return "API"
	}
}
