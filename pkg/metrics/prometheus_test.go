package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordInserted("depth", 3)
	r.RecordInserted("depth", 2)
	r.RecordSkipped("swap", 4)
	r.RecordError("store_unavailable")
	r.RecordCycle("persisted")
	r.RecordCursor(1700000000)

	assert.Equal(t, 5.0, testutil.ToFloat64(r.rowsInserted.WithLabelValues("depth")))
	assert.Equal(t, 4.0, testutil.ToFloat64(r.rowsSkipped.WithLabelValues("swap")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("store_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cycles.WithLabelValues("persisted")))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(r.cursor))

	// a second recorder on its own registry must not collide
	require.NotPanics(t, func() { NewWithRegistry(prometheus.NewRegistry()) })
}
