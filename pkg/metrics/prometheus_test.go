package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())

	r.RecordDecision("EURUSD", "buy", "accepted")
	r.RecordDecision("EURUSD", "buy", "accepted")
	r.RecordDecision("EURUSD", "hold", "high_entropy")
	r.RecordDroppedSignals(3)
	r.RecordDroppedSignals(0)
	r.RecordStoreConflict("thresholds")
	r.RecordThresholds(0.77, 0.53, 0.00004)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("EURUSD", "buy", "accepted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("EURUSD", "hold", "high_entropy")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.droppedSignals))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.storeConflicts.WithLabelValues("thresholds")))
	assert.Equal(t, 0.77, testutil.ToFloat64(r.thresholds.WithLabelValues("entropy_current")))
}
