package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

// IncClickRecorded is a no-op.
func (n *NoopRecorder) IncClickRecorded(valid bool) {}

// IncRedirect is a no-op.
func (n *NoopRecorder) IncRedirect(outcome string) {}

// IncConversionTracked is a no-op.
func (n *NoopRecorder) IncConversionTracked(status string) {}

// IncWebhookIntake is a no-op.
func (n *NoopRecorder) IncWebhookIntake(platform, status string) {}

// IncPostbackDelivery is a no-op.
func (n *NoopRecorder) IncPostbackDelivery(status string) {}

// ObservePostbackDuration is a no-op.
func (n *NoopRecorder) ObservePostbackDuration(duration time.Duration) {}

// SetPostbackQueueDepth is a no-op.
func (n *NoopRecorder) SetPostbackQueueDepth(depth int64) {}
