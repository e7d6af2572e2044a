// Package logging provides structured logging for FreshTrack Pro.
//
// It wraps log/slog with service-wide default fields and config-driven
// level, format and output selection.
package logging
