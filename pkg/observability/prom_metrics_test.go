package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/eval"
)

func TestRecordReport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	r := eval.CompareConfusion(
		eval.Confusion{TruePositive: 4, FalsePositive: 4, FalseNegative: 6, TrueNegative: 86},
		eval.Confusion{TruePositive: 6, FalsePositive: 2, FalseNegative: 4, TrueNegative: 88},
	)
	m.RecordReport(100, r)
	m.SetFlagged(detectors.NameOutlier, 8)
	m.ObserveFit(0.02)

	assert.Equal(t, 100.0, testutil.ToFloat64(m.records))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.flagged.WithLabelValues(detectors.NameOutlier)))
	assert.Equal(t, 0.5, testutil.ToFloat64(m.scores.WithLabelValues(detectors.NameThreshold, "precision")))
	assert.Equal(t, 0.75, testutil.ToFloat64(m.scores.WithLabelValues(detectors.NameOutlier, "precision")))
	assert.Equal(t, 88.0, testutil.ToFloat64(m.confusion.WithLabelValues(detectors.NameOutlier, "true_negative")))
	assert.InDelta(t, r.F1ImprovementPct, testutil.ToFloat64(m.improvement.WithLabelValues("f1")), 1e-12)
	assert.Equal(t, 1, testutil.CollectAndCount(m.fitLatency))
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.RecordReport(10, eval.Report{})

	path := filepath.Join(t.TempDir(), "trafficeval.prom")
	require.NoError(t, WriteTextfile(path, reg))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "trafficeval_records_total 10")
	assert.Contains(t, string(raw), `trafficeval_detector_score{detector="threshold",metric="f1"} 0`)
}
