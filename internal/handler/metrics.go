package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/afftrack/afftrack/internal/metrics"
)

// MetricsHandler exposes in-memory metrics.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns metrics in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "afftrack_clicks_recorded_total{valid=\"true\"} %d\n", snap.ClicksValid)
	writeMetric(w, "afftrack_clicks_recorded_total{valid=\"false\"} %d\n", snap.ClicksInvalid)

	writeLabeled(w, "afftrack_redirects_total", "outcome", snap.RedirectsByOutcome)
	writeLabeled(w, "afftrack_conversions_tracked_total", "status", snap.ConversionsByStatus)
	writeLabeled(w, "afftrack_webhook_intake_total", "key", snap.IntakeByStatus)
	writeLabeled(w, "afftrack_postback_deliveries_total", "status", snap.PostbacksByStatus)

	writeMetric(w, "afftrack_postback_duration_seconds_count %d\n", snap.PostbackDurationCount)
	writeMetric(w, "afftrack_postback_duration_seconds_sum %.6f\n", float64(snap.PostbackDurationTotalNs)/1e9)
	writeMetric(w, "afftrack_postback_queue_depth %d\n", snap.PostbackQueueDepth)
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

// writeLabeled emits one sample per map key, sorted for stable output.
func writeLabeled(w http.ResponseWriter, name, label string, counts map[string]uint64) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeMetric(w, "%s{%s=%q} %d\n", name, label, k, counts[k])
	}
}
