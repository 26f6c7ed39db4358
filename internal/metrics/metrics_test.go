package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"
)

func TestCollectorsRegistered(t *testing.T) {
	Runs.WithLabelValues("success").Inc()
	Actions.WithLabelValues("create", "ok").Inc()
	Selected.WithLabelValues("telecom/ipv4").Set(3)
	RowsDropped.Inc()
	RunDuration.Observe(1)
	LastSuccess.SetToCurrentTime()

	families, err := ctrlmetrics.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"dns_optimizer_runs_total",
		"dns_optimizer_actions_total",
		"dns_optimizer_rows_dropped_total",
		"dns_optimizer_selected_addresses",
		"dns_optimizer_run_duration_seconds",
		"dns_optimizer_last_success_timestamp_seconds",
	} {
		assert.True(t, names[want], want)
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(Selected.WithLabelValues("telecom/ipv4")))
}
