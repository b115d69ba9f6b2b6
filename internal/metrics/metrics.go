// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus, StatsD, etc.
type Recorder interface {
	// Click pipeline metrics
	IncClickRecorded(valid bool)
	IncRedirect(outcome string) // outcome: "offer", "safe" or "fallback"

	// Conversion pipeline metrics
	IncConversionTracked(status string) // status: "created" or "duplicate"

	// Webhook intake metrics
	IncWebhookIntake(platform, status string) // status: "ok", "duplicate", "failed"

	// Postback dispatch metrics
	IncPostbackDelivery(status string) // status: "success", "failed", "skipped", "exhausted"
	ObservePostbackDuration(duration time.Duration)
	SetPostbackQueueDepth(depth int64)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
