// Package mqtt publishes provisioning lifecycle events to the broker.
//
// Dashboards and alerting subscribe to the freshtrack/# namespace to
// follow provisioning and deprovisioning as it happens, without
// polling the API. The client wraps paho.mqtt.golang with connection
// management, automatic reconnection and bounded publish timeouts.
//
// Event publishing is strictly best-effort: a broker outage must never
// fail or delay a provisioning step, so callers log publish errors and
// move on.
package mqtt
