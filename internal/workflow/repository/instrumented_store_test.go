package repository

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/hivemind/pkg/metrics"
)

func TestInstrumentedStore(t *testing.T) {
	prev := metrics.Global()
	reg := metrics.NewRegistry(metrics.Config{})
	metrics.SetGlobal(reg)
	t.Cleanup(func() { metrics.SetGlobal(prev) })

	store := Instrument(NewMemoryStore())
	assert.Same(t, store, Instrument(store))

	repo := NewStateRepository(store)
	ctx := context.Background()

	inst, err := repo.CreateInstance(ctx, testParams())
	require.NoError(t, err)
	require.NoError(t, repo.AppendStep(ctx, inst.ID, StepFlowInitialization, nil))

	var steps []string
	for ev, err := range repo.ReadSteps(ctx, inst.ID) {
		require.NoError(t, err)
		steps = append(steps, ev.StepName)
	}
	assert.Equal(t, []string{StepInitialization, StepFlowInitialization}, steps)

	_, err = repo.GetWorkflowState(ctx, "missing")
	require.ErrorIs(t, err, ErrInstanceNotFound)

	families, err := reg.PrometheusRegistry().Gather()
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, mf := range families {
		if mf.GetName() != "hivemind_store_operations_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var op, status string
			for _, l := range m.GetLabel() {
				switch l.GetName() {
				case "operation":
					op = l.GetValue()
				case "status":
					status = l.GetValue()
				}
			}
			seen[op+"/"+status] = true
		}
	}
	assert.True(t, seen["insert/success"])
	assert.True(t, seen["apply/success"])
	assert.True(t, seen["read/success"])
	assert.True(t, seen["get/not_found"])
	n, err := testutil.GatherAndCount(reg.PrometheusRegistry(), "hivemind_store_operation_duration_seconds")
	require.NoError(t, err)
	assert.Positive(t, n)
}
