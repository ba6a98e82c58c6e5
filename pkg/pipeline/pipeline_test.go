package pipeline

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hed1ad/trafficeval/pkg/config"
	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/detectors/iforest"
	"github.com/hed1ad/trafficeval/pkg/observability"
	"github.com/hed1ad/trafficeval/pkg/traffic"
)

func newPipeline(t *testing.T, mutate func(c *config.Config), opts ...Option) *Pipeline {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	return p
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *config.Config)
	}{
		{name: "no trees", mutate: func(c *config.Config) { c.NumTrees = 0 }},
		{name: "negative threshold", mutate: func(c *config.Config) { c.DoSThreshold = -1 }},
		{name: "contamination out of range", mutate: func(c *config.Config) { c.Contamination = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			_, err := New(cfg)
			assert.ErrorIs(t, err, detectors.ErrInvalidConfig)
		})
	}
}

func TestRunSingleBusySource(t *testing.T) {
	records := make([]traffic.Record, 10)
	for i := range records {
		records[i] = traffic.Record{Timestamp: float64(i), SourceID: "A", PacketSize: 100 + 10*i, Label: traffic.Malicious}
	}

	p := newPipeline(t, func(c *config.Config) { c.DoSThreshold = 5 })
	out, err := p.Run(records)
	require.NoError(t, err)

	assert.Equal(t, 10, detectors.Flagged(out.ThresholdResults))
	assert.Equal(t, 1.0, out.Report.ThresholdMetrics.Recall)
	assert.Equal(t, 1.0, out.Report.ThresholdMetrics.Accuracy)
	require.Len(t, out.FlaggedSources, 1)
	assert.Equal(t, "A", out.FlaggedSources[0].ID)
}

func TestRunDistinctSources(t *testing.T) {
	records := []traffic.Record{
		{SourceID: "a", PacketSize: 100},
		{SourceID: "b", PacketSize: 100},
		{SourceID: "c", PacketSize: 100},
	}

	p := newPipeline(t, func(c *config.Config) { c.DoSThreshold = 1 })
	out, err := p.Run(records)
	require.NoError(t, err)

	assert.Equal(t, 0, detectors.Flagged(out.ThresholdResults))
	assert.Empty(t, out.FlaggedSources)
	assert.Equal(t, 0.0, out.Report.ThresholdMetrics.Precision)
	assert.Equal(t, 0.0, out.Report.ThresholdMetrics.F1)
	assert.Equal(t, 1.0, out.Report.ThresholdMetrics.Accuracy)
}

func TestRunEmptyBatch(t *testing.T) {
	out, err := newPipeline(t, nil).Run(nil)
	require.NoError(t, err)

	assert.Empty(t, out.ThresholdResults)
	assert.Empty(t, out.OutlierResults)
	assert.Zero(t, out.Report.ThresholdConfusion.Total())
	assert.Equal(t, 0.0, out.Report.OutlierMetrics.Accuracy)
	assert.Equal(t, 0.0, out.Report.F1ImprovementPct)
}

func TestRunRejectsMalformedBatch(t *testing.T) {
	records := []traffic.Record{
		{SourceID: "a", PacketSize: 100},
		{SourceID: "", PacketSize: 100},
	}

	_, err := newPipeline(t, nil).Run(records)
	assert.ErrorIs(t, err, traffic.ErrInvalidRecord)
}

func TestRunGeneratedBatch(t *testing.T) {
	cfg := config.Default()
	g, err := traffic.NewGenerator(cfg.Generator())
	require.NoError(t, err)
	records := g.Generate()

	out, err := newPipeline(t, nil).Run(records)
	require.NoError(t, err)

	n := len(records)
	require.Len(t, out.ThresholdResults, n)
	require.Len(t, out.OutlierResults, n)
	assert.Equal(t, n, out.Report.ThresholdConfusion.Total())
	assert.Equal(t, n, out.Report.OutlierConfusion.Total())
	assert.Equal(t, int(math.Round(cfg.Contamination*float64(n))), detectors.Flagged(out.OutlierResults))

	for _, m := range []float64{
		out.Report.ThresholdMetrics.Precision, out.Report.ThresholdMetrics.Recall,
		out.Report.ThresholdMetrics.F1, out.Report.ThresholdMetrics.Accuracy,
		out.Report.OutlierMetrics.Precision, out.Report.OutlierMetrics.Recall,
		out.Report.OutlierMetrics.F1, out.Report.OutlierMetrics.Accuracy,
	} {
		assert.GreaterOrEqual(t, m, 0.0)
		assert.LessOrEqual(t, m, 1.0)
	}

	for i, r := range out.OutlierResults {
		assert.Equal(t, i, r.RecordID)
		assert.Equal(t, detectors.NameOutlier, r.Detector)
		assert.Equal(t, detectors.NameThreshold, out.ThresholdResults[i].Detector)
	}
}

func TestRunDeterministic(t *testing.T) {
	records := clusteredBatch(3)

	first, err := newPipeline(t, nil).Run(records)
	require.NoError(t, err)
	second, err := newPipeline(t, func(c *config.Config) { c.Workers = 1 }).Run(records)
	require.NoError(t, err)

	assert.Equal(t, first.OutlierResults, second.OutlierResults)
	assert.Equal(t, first.Report, second.Report)
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestOutlierRecallOnClusteredAttack(t *testing.T) {
	const runs = 5

	var recall float64
	for seed := int64(1); seed <= runs; seed++ {
		records := clusteredBatch(seed)
		p := newPipeline(t, func(c *config.Config) {
			c.Contamination = 0.1
			c.RandomSeed = seed
		})

		out, err := p.Run(records)
		require.NoError(t, err)
		assert.Equal(t, 100, detectors.Flagged(out.OutlierResults))
		recall += out.Report.OutlierMetrics.Recall
	}

	assert.GreaterOrEqual(t, recall/runs, 0.5)
}

func TestDetectWithSavedForest(t *testing.T) {
	records := clusteredBatch(4)
	p := newPipeline(t, nil)

	fitted, err := p.Run(records)
	require.NoError(t, err)

	raw, err := fitted.Forest.Save()
	require.NoError(t, err)
	loaded, err := iforest.New()
	require.NoError(t, err)
	require.NoError(t, loaded.Load(raw))

	reused, err := p.DetectWith(records, loaded)
	require.NoError(t, err)
	assert.Equal(t, fitted.OutlierResults, reused.OutlierResults)

	empty, err := p.DetectWith(nil, loaded)
	require.NoError(t, err)
	assert.Empty(t, empty.OutlierResults)
}

func TestRunLogsAndMetrics(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	p := newPipeline(t, nil, WithLogger(zap.New(core)), WithMetrics(metrics))
	out, err := p.Run(clusteredBatch(5))
	require.NoError(t, err)

	finished := logs.FilterMessage("run finished").All()
	require.Len(t, finished, 1)
	assert.Equal(t, out.RunID.String(), finished[0].ContextMap()["run_id"])
	assert.Equal(t, 1, logs.FilterMessage("isolation forest finished").Len())

	count, err := testutil.GatherAndCount(reg, "trafficeval_runs_total", "trafficeval_flagged_records")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "trafficeval_records_total")
	assert.Contains(t, names, "trafficeval_forest_fit_seconds")
}

// clusteredBatch returns 900 benign records spread over many hosts and 100
// malicious records with large packets concentrated on two hosts.
func clusteredBatch(seed int64) []traffic.Record {
	rng := rand.New(rand.NewSource(seed))
	records := make([]traffic.Record, 0, 1000)

	for i := 0; i < 900; i++ {
		records = append(records, traffic.Record{
			Timestamp:  float64(i),
			SourceID:   fmt.Sprintf("192.168.1.%d", 1+rng.Intn(49)),
			PacketSize: 50 + rng.Intn(1450),
			Label:      traffic.Benign,
		})
	}
	for i := 0; i < 100; i++ {
		records = append(records, traffic.Record{
			Timestamp:  float64(900 + i),
			SourceID:   fmt.Sprintf("10.0.0.%d", 1+i%2),
			PacketSize: 1500 + rng.Intn(1500),
			Label:      traffic.Malicious,
		})
	}

	rng.Shuffle(len(records), func(i, j int) {
		records[i], records[j] = records[j], records[i]
	})

	return records
}
