// Package influxdb records provisioning metrics: step durations and
// deprovision job outcomes.
//
// The recorder is optional. When disabled in configuration the rest of
// the system runs unchanged; callers hold a nil-safe Recorder and every
// write becomes a no-op. Writes are batched and non-blocking, so a slow
// or absent InfluxDB never backpressures provisioning.
package influxdb
