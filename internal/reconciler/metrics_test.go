package reconciler

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_CountersAndSummary(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordRun(PassMissingStatus)
	m.RecordScheduled(PassMissingStatus)
	m.RecordScheduled(PassMissingStatus)
	m.RecordSkipped(PassMissingStatus, ReasonHasStatus)
	m.RecordRun(PassRestartPending)
	m.RecordSkipped(PassRestartPending, ReasonNoChangeRequest)
	m.RecordProviderError(PassRestartPending, "P", errors.New("timeout"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.scheduled.WithLabelValues(string(PassMissingStatus))))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.skipped.WithLabelValues(string(PassRestartPending), ReasonNoChangeRequest)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerErrors.WithLabelValues(string(PassRestartPending))))

	summary := m.GetSummary()
	assert.Equal(t, int64(2), summary.TotalScheduled)
	assert.Equal(t, int64(2), summary.TotalSkipped)
	assert.Equal(t, int64(1), summary.TotalProviderErrors)
	require.Len(t, summary.PerPass, 2)
	assert.Equal(t, PassMissingStatus, summary.PerPass[0].Pass)
	assert.Equal(t, PassRestartPending, summary.PerPass[1].Pass)
	assert.False(t, summary.PerPass[0].LastRunAt.IsZero())
}

func TestMetrics_SummaryIsACopy(t *testing.T) {
	m := NewMetrics(nil)
	m.RecordSkipped(PassMissingStatus, ReasonDuplicate)

	summary := m.GetSummary()
	summary.PerPass[0].Skipped[ReasonDuplicate] = 100

	assert.Equal(t, int64(1), m.GetSummary().PerPass[0].Skipped[ReasonDuplicate])
}

func TestRegisterStateGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	depth := 3
	require.NoError(t, RegisterStateGauges(reg,
		func() int { return 2 },
		func() int { return depth },
		nil,
	))

	count, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Registering the same gauges twice is rejected.
	assert.Error(t, RegisterStateGauges(reg, func() int { return 0 }, nil, nil))
}
