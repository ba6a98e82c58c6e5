// Package observability exports evaluation results as Prometheus metrics.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hed1ad/trafficeval/pkg/detectors"
	"github.com/hed1ad/trafficeval/pkg/eval"
)

// Metrics holds the collectors updated after every pipeline run.
type Metrics struct {
	records     prometheus.Counter
	runs        prometheus.Counter
	flagged     *prometheus.GaugeVec
	scores      *prometheus.GaugeVec
	confusion   *prometheus.GaugeVec
	improvement *prometheus.GaugeVec
	fitLatency  prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficeval_records_total",
			Help: "Traffic records evaluated.",
		}),
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trafficeval_runs_total",
			Help: "Completed evaluation runs.",
		}),
		flagged: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficeval_flagged_records",
			Help: "Records labeled malicious in the last run.",
		}, []string{"detector"}),
		scores: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficeval_detector_score",
			Help: "Precision, recall, f1 and accuracy of the last run.",
		}, []string{"detector", "metric"}),
		confusion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficeval_confusion_records",
			Help: "Confusion matrix cells of the last run.",
		}, []string{"detector", "cell"}),
		improvement: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficeval_improvement_percent",
			Help: "Relative improvement of the outlier scorer over the threshold rule.",
		}, []string{"metric"}),
		fitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trafficeval_forest_fit_seconds",
			Help:    "Time spent fitting and scoring the isolation forest.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(m.records, m.runs, m.flagged, m.scores, m.confusion, m.improvement, m.fitLatency)

	return m
}

// ObserveFit records the duration of a forest fit in seconds.
func (m *Metrics) ObserveFit(seconds float64) {
	m.fitLatency.Observe(seconds)
}

// SetFlagged records how many records a detector flagged.
func (m *Metrics) SetFlagged(detector string, n int) {
	m.flagged.WithLabelValues(detector).Set(float64(n))
}

// RecordReport publishes a finished run.
func (m *Metrics) RecordReport(records int, r eval.Report) {
	m.records.Add(float64(records))
	m.runs.Inc()

	m.setDetector(detectors.NameThreshold, r.ThresholdMetrics, r.ThresholdConfusion)
	m.setDetector(detectors.NameOutlier, r.OutlierMetrics, r.OutlierConfusion)

	m.improvement.WithLabelValues("precision").Set(r.PrecisionImprovementPct)
	m.improvement.WithLabelValues("recall").Set(r.RecallImprovementPct)
	m.improvement.WithLabelValues("f1").Set(r.F1ImprovementPct)
	m.improvement.WithLabelValues("accuracy").Set(r.AccuracyImprovementPct)
}

func (m *Metrics) setDetector(name string, s eval.Metrics, c eval.Confusion) {
	m.scores.WithLabelValues(name, "precision").Set(s.Precision)
	m.scores.WithLabelValues(name, "recall").Set(s.Recall)
	m.scores.WithLabelValues(name, "f1").Set(s.F1)
	m.scores.WithLabelValues(name, "accuracy").Set(s.Accuracy)

	m.confusion.WithLabelValues(name, "true_positive").Set(float64(c.TruePositive))
	m.confusion.WithLabelValues(name, "false_positive").Set(float64(c.FalsePositive))
	m.confusion.WithLabelValues(name, "false_negative").Set(float64(c.FalseNegative))
	m.confusion.WithLabelValues(name, "true_negative").Set(float64(c.TrueNegative))
}

// WriteTextfile dumps every metric gathered by g in the text exposition
// format, for node_exporter's textfile collector.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}
