package mqtt

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle event types.
const (
	EventProvisioned          = "provisioned"
	EventDeprovisionStarted   = "deprovision_started"
	EventDeprovisionSucceeded = "deprovision_succeeded"
	EventDeprovisionRetrying  = "deprovision_retrying"
	EventDeprovisionBlocked   = "deprovision_blocked"
)

// LifecycleEvent is the payload published for provisioning lifecycle
// changes.
type LifecycleEvent struct {
	Type       string    `json:"type"`
	OrgID      string    `json:"org_id"`
	EntityType string    `json:"entity_type"`
	EntityEUI  string    `json:"entity_eui"`
	JobID      string    `json:"job_id,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Topics builds topic paths under the configured namespace.
type Topics struct {
	Namespace string
}

// Lifecycle returns the topic lifecycle events for an organisation are
// published on, e.g. freshtrack/org-1/lifecycle/device.
func (t Topics) Lifecycle(orgID, entityType string) string {
	return fmt.Sprintf("%s/%s/lifecycle/%s", t.Namespace, orgID, entityType)
}

// PublishLifecycle serialises and publishes a lifecycle event. The
// timestamp is stamped here if unset.
func (c *Client) PublishLifecycle(event LifecycleEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding lifecycle event: %w", err)
	}
	return c.Publish(c.topics.Lifecycle(event.OrgID, event.EntityType), payload)
}
