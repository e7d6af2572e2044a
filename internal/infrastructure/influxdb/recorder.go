package influxdb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/getdatasurge/freshtrack-pro-sub011/internal/infrastructure/config"
)

const defaultConnectTimeout = 10 * time.Second

// Recorder writes provisioning metrics to InfluxDB.
//
// A nil *Recorder is valid and ignores every write, which is how the
// disabled configuration is represented. All methods are safe for
// concurrent use; writes are batched and non-blocking.
type Recorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
}

// Connect creates a recorder and verifies connectivity with a ping.
// Returns ErrDisabled when the integration is switched off.
func Connect(cfg config.InfluxDB) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, ErrConnectionFailed
	}

	return &Recorder{
		client:   client,
		writeAPI: client.WriteAPI(cfg.Org, cfg.Bucket),
	}, nil
}

// RecordStepDuration records one provisioning or deprovisioning step.
func (r *Recorder) RecordStepDuration(orgID, step, status string, duration time.Duration) {
	if r == nil {
		return
	}
	point := influxdb2.NewPoint("provisioning_step",
		map[string]string{
			"org_id": orgID,
			"step":   step,
			"status": status,
		},
		map[string]any{
			"duration_ms": duration.Milliseconds(),
		},
		time.Now().UTC())
	r.writeAPI.WritePoint(point)
}

// RecordJobOutcome records the terminal or intermediate outcome of a
// deprovision job attempt.
func (r *Recorder) RecordJobOutcome(orgID, entityType, status string, attempts int) {
	if r == nil {
		return
	}
	point := influxdb2.NewPoint("deprovision_job",
		map[string]string{
			"org_id":      orgID,
			"entity_type": entityType,
			"status":      status,
		},
		map[string]any{
			"attempts": attempts,
		},
		time.Now().UTC())
	r.writeAPI.WritePoint(point)
}

// Close flushes pending writes and releases the client.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.writeAPI.Flush()
	r.client.Close()
}
