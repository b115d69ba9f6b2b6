package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ClicksValid             uint64
	ClicksInvalid           uint64
	RedirectsByOutcome      map[string]uint64
	ConversionsByStatus     map[string]uint64
	IntakeByStatus          map[string]uint64
	PostbacksByStatus       map[string]uint64
	PostbackDurationCount   uint64
	PostbackDurationTotalNs int64
	PostbackQueueDepth      int64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	clicksValid   uint64
	clicksInvalid uint64

	mu          sync.Mutex
	redirects   map[string]uint64
	conversions map[string]uint64
	intake      map[string]uint64
	postbacks   map[string]uint64

	postbackDurationCount   uint64
	postbackDurationTotalNs int64
	postbackQueueDepth      int64
}

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{
		redirects:   make(map[string]uint64),
		conversions: make(map[string]uint64),
		intake:      make(map[string]uint64),
		postbacks:   make(map[string]uint64),
	}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ClicksValid:             atomic.LoadUint64(&m.clicksValid),
		ClicksInvalid:           atomic.LoadUint64(&m.clicksInvalid),
		RedirectsByOutcome:      copyCounts(m.redirects),
		ConversionsByStatus:     copyCounts(m.conversions),
		IntakeByStatus:          copyCounts(m.intake),
		PostbacksByStatus:       copyCounts(m.postbacks),
		PostbackDurationCount:   atomic.LoadUint64(&m.postbackDurationCount),
		PostbackDurationTotalNs: atomic.LoadInt64(&m.postbackDurationTotalNs),
		PostbackQueueDepth:      atomic.LoadInt64(&m.postbackQueueDepth),
	}
}

// IncClickRecorded increments the click counter for the validity class.
func (m *InMemoryRecorder) IncClickRecorded(valid bool) {
	if valid {
		atomic.AddUint64(&m.clicksValid, 1)
		return
	}
	atomic.AddUint64(&m.clicksInvalid, 1)
}

// IncRedirect increments the redirect counter for an outcome.
func (m *InMemoryRecorder) IncRedirect(outcome string) {
	m.inc(m.redirects, outcome)
}

// IncConversionTracked increments the conversion counter for a status.
func (m *InMemoryRecorder) IncConversionTracked(status string) {
	m.inc(m.conversions, status)
}

// IncWebhookIntake increments the intake counter for a status.
func (m *InMemoryRecorder) IncWebhookIntake(platform, status string) {
	m.inc(m.intake, platform+":"+status)
}

// IncPostbackDelivery increments the postback counter for a status.
func (m *InMemoryRecorder) IncPostbackDelivery(status string) {
	m.inc(m.postbacks, status)
}

// ObservePostbackDuration records postback delivery duration.
func (m *InMemoryRecorder) ObservePostbackDuration(duration time.Duration) {
	atomic.AddUint64(&m.postbackDurationCount, 1)
	atomic.AddInt64(&m.postbackDurationTotalNs, duration.Nanoseconds())
}

// SetPostbackQueueDepth records the current queue depth.
func (m *InMemoryRecorder) SetPostbackQueueDepth(depth int64) {
	atomic.StoreInt64(&m.postbackQueueDepth, depth)
}

func (m *InMemoryRecorder) inc(counts map[string]uint64, key string) {
	m.mu.Lock()
	counts[key]++
	m.mu.Unlock()
}

func copyCounts(counts map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(counts))
	for k, v := range counts {
		out[k] = v
	}
	return out
}
