package engine

import (
	"time"

	"frigate-occupancy/internal/metrics"
)

// MediaURLBuilder fills in snapshot/clip URLs when a payload flags media
// as available but carries no URL. Implemented by frigate.Client.
type MediaURLBuilder interface {
	SnapshotURL(eventID string) string
	ClipURL(eventID string) string
}

type EngineOption func(*Engine)

// WithZoneDevices enables per-zone virtual devices.
func WithZoneDevices(enabled bool) EngineOption {
	return func(e *Engine) {
		e.zoneDevices = enabled
	}
}

// WithZoneObjectDevices enables per-object-within-zone virtual devices.
func WithZoneObjectDevices(enabled bool) EngineOption {
	return func(e *Engine) {
		e.zoneObjectDevices = enabled
	}
}

// WithStaleEventTimeout force-ends events that have gone quiet for longer
// than the timeout. Zero disables the sweep; lifecycle "end" messages are
// then the only thing that deactivates cameras and zones.
func WithStaleEventTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.staleTimeout = timeout
	}
}

func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

func WithMediaURLs(media MediaURLBuilder) EngineOption {
	return func(e *Engine) {
		e.media = media
	}
}
