package reconciler

import (
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ciwarden/pkg/logging"
)

const metricsNamespace = "ciwarden"

// Skip reasons recorded by Metrics.
const (
	ReasonDuplicate             = "duplicate"
	ReasonNoChangeRequest       = "no-change-request"
	ReasonAmbiguous             = "ambiguous-change-request"
	ReasonHasStatus             = "has-status"
	ReasonUnsupportedCredential = "unsupported-credential"
	ReasonNoBranches            = "no-branches"
	ReasonSetupFailed           = "setup-failed"
)

// Metrics tracks what the reconciliation passes scheduled and skipped. It
// exports Prometheus counters and keeps an in-process summary per pass.
type Metrics struct {
	scheduled      *prometheus.CounterVec
	skipped        *prometheus.CounterVec
	providerErrors *prometheus.CounterVec

	mu     sync.RWMutex
	passes map[Pass]*passMetrics
}

// passMetrics holds the in-process counters of one pass.
type passMetrics struct {
	Runs           int64
	Scheduled      int64
	Skipped        map[string]int64
	ProviderErrors int64
	LastRunAt      time.Time
}

// NewMetrics creates the reconciliation metrics and registers them with reg.
// A nil reg keeps the collectors unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reconcile",
			Name:      "scheduled_total",
			Help:      "Build executions admitted by a reconciliation pass.",
		}, []string{"pass"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "reconcile",
			Name:      "skipped_total",
			Help:      "Candidates a reconciliation pass did not schedule, by reason.",
		}, []string{"pass", "reason"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "provider_errors_total",
			Help:      "Failed hosting provider queries that aborted a project.",
		}, []string{"pass"}),
		passes: make(map[Pass]*passMetrics),
	}
	if reg != nil {
		reg.MustRegister(m.scheduled, m.skipped, m.providerErrors)
	}
	return m
}

func (m *Metrics) getOrCreatePass(pass Pass) *passMetrics {
	if pm, exists := m.passes[pass]; exists {
		return pm
	}
	pm := &passMetrics{Skipped: make(map[string]int64)}
	m.passes[pass] = pm
	return pm
}

// RecordRun records the start of a pass.
func (m *Metrics) RecordRun(pass Pass) {
	m.mu.Lock()
	defer m.mu.Unlock()

	pm := m.getOrCreatePass(pass)
	pm.Runs++
	pm.LastRunAt = time.Now()
}

// RecordScheduled records an admitted build execution.
func (m *Metrics) RecordScheduled(pass Pass) {
	m.scheduled.WithLabelValues(string(pass)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreatePass(pass).Scheduled++
}

// RecordSkipped records a candidate that was not scheduled.
func (m *Metrics) RecordSkipped(pass Pass, reason string) {
	m.skipped.WithLabelValues(string(pass), reason).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreatePass(pass).Skipped[reason]++
}

// RecordProviderError records a provider query failure.
func (m *Metrics) RecordProviderError(pass Pass, projectID string, err error) {
	m.providerErrors.WithLabelValues(string(pass)).Inc()

	m.mu.Lock()
	defer m.mu.Unlock()

	pm := m.getOrCreatePass(pass)
	pm.ProviderErrors++

	logging.Debug("ReconcilerMetrics", "Provider error in %s for %s (errors: %d): %v",
		pass, projectID, pm.ProviderErrors, err)
}

// MetricsSummary is a point-in-time copy of the per-pass counters.
type MetricsSummary struct {
	TotalScheduled      int64            `json:"total_scheduled" yaml:"totalScheduled"`
	TotalSkipped        int64            `json:"total_skipped" yaml:"totalSkipped"`
	TotalProviderErrors int64            `json:"total_provider_errors" yaml:"totalProviderErrors"`
	PerPass             []PassMetricView `json:"per_pass" yaml:"perPass"`
}

// PassMetricView is a read-only view of one pass's counters.
type PassMetricView struct {
	Pass           Pass             `json:"pass" yaml:"pass"`
	Runs           int64            `json:"runs" yaml:"runs"`
	Scheduled      int64            `json:"scheduled" yaml:"scheduled"`
	Skipped        map[string]int64 `json:"skipped" yaml:"skipped"`
	ProviderErrors int64            `json:"provider_errors" yaml:"providerErrors"`
	LastRunAt      time.Time        `json:"last_run_at,omitempty" yaml:"lastRunAt,omitempty"`
}

// GetSummary returns the current counters, ordered by pass name.
func (m *Metrics) GetSummary() MetricsSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var summary MetricsSummary
	for pass, pm := range m.passes {
		view := PassMetricView{
			Pass:           pass,
			Runs:           pm.Runs,
			Scheduled:      pm.Scheduled,
			Skipped:        make(map[string]int64, len(pm.Skipped)),
			ProviderErrors: pm.ProviderErrors,
			LastRunAt:      pm.LastRunAt,
		}
		for reason, n := range pm.Skipped {
			view.Skipped[reason] = n
			summary.TotalSkipped += n
		}
		summary.TotalScheduled += pm.Scheduled
		summary.TotalProviderErrors += pm.ProviderErrors
		summary.PerPass = append(summary.PerPass, view)
	}
	sort.Slice(summary.PerPass, func(i, j int) bool {
		return summary.PerPass[i].Pass < summary.PerPass[j].Pass
	})
	return summary
}

// RegisterStateGauges exports gauges reading live component state at scrape
// time.
func RegisterStateGauges(reg prometheus.Registerer, registryLen, queueDepth, pollers func() int) error {
	gauges := []struct {
		name string
		help string
		fn   func() int
	}{
		{"registry_executions", "Build executions held by the registry.", registryLen},
		{"git_queue_depth", "Operations waiting in the git mutation queue.", queueDepth},
		{"pollers_active", "Running project pollers.", pollers},
	}
	for _, g := range gauges {
		if g.fn == nil {
			continue
		}
		fn := g.fn
		collector := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      g.name,
			Help:      g.help,
		}, func() float64 { return float64(fn()) })
		if err := reg.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
