package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordConstruction_IncrementsOutcome(t *testing.T) {
	before := testutil.ToFloat64(constructionsCounter.WithLabelValues(OutcomeCycle))
	RecordConstruction(OutcomeCycle)
	after := testutil.ToFloat64(constructionsCounter.WithLabelValues(OutcomeCycle))
	assert.Equal(t, before+1, after)
}

func TestRecordDisposal_IncrementsOutcome(t *testing.T) {
	before := testutil.ToFloat64(disposalsCounter.WithLabelValues(OutcomeFailure))
	RecordDisposal(OutcomeFailure)
	assert.Equal(t, before+1, testutil.ToFloat64(disposalsCounter.WithLabelValues(OutcomeFailure)))
}

func TestSetSingletons(t *testing.T) {
	SetSingletons(7)
	assert.Equal(t, float64(7), testutil.ToFloat64(singletonsGauge))
}

func TestRegister_OnlyOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	Register(reg) // second call must not panic with AlreadyRegisteredError

	RecordEarlyReference()
	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "lifecycle_early_references_total")
	assert.Contains(t, names, "lifecycle_singletons")
}
