package eval

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report compares the threshold rule (baseline) with the outlier scorer
// (candidate).
type Report struct {
	ThresholdMetrics   Metrics   `json:"threshold_metrics"`
	OutlierMetrics     Metrics   `json:"outlier_metrics"`
	ThresholdConfusion Confusion `json:"threshold_confusion"`
	OutlierConfusion   Confusion `json:"outlier_confusion"`

	PrecisionImprovementPct float64 `json:"precision_improvement_pct"`
	RecallImprovementPct    float64 `json:"recall_improvement_pct"`
	F1ImprovementPct        float64 `json:"f1_improvement_pct"`
	AccuracyImprovementPct  float64 `json:"accuracy_improvement_pct"`
}

// Improvement returns the relative change from baseline to candidate in
// percent, or 0 when the baseline is 0.
func Improvement(baseline, candidate float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (candidate - baseline) / baseline * 100
}

// Compare builds a report from the metrics of both detectors.
func Compare(baseline, candidate Metrics) Report {
	return Report{
		ThresholdMetrics:        baseline,
		OutlierMetrics:          candidate,
		PrecisionImprovementPct: Improvement(baseline.Precision, candidate.Precision),
		RecallImprovementPct:    Improvement(baseline.Recall, candidate.Recall),
		F1ImprovementPct:        Improvement(baseline.F1, candidate.F1),
		AccuracyImprovementPct:  Improvement(baseline.Accuracy, candidate.Accuracy),
	}
}

// CompareConfusion builds a report from the tallies of both detectors.
func CompareConfusion(baseline, candidate Confusion) Report {
	r := Compare(baseline.Metrics(), candidate.Metrics())
	r.ThresholdConfusion = baseline
	r.OutlierConfusion = candidate
	return r
}

// Format writes the report as human readable text.
func (r Report) Format(w io.Writer) error {
	_, err := fmt.Fprintf(w, `Threshold-based Detection Metrics:
Precision: %.2f
Recall: %.2f
F1 Score: %.2f
Accuracy: %.2f

Anomaly-based Detection Metrics:
Precision: %.2f
Recall: %.2f
F1 Score: %.2f
Accuracy: %.2f

Percentage of Improvement (Anomaly-based over Threshold-based):
F1 Score Improvement: %.2f%%
Accuracy Improvement: %.2f%%
`,
		r.ThresholdMetrics.Precision, r.ThresholdMetrics.Recall, r.ThresholdMetrics.F1, r.ThresholdMetrics.Accuracy,
		r.OutlierMetrics.Precision, r.OutlierMetrics.Recall, r.OutlierMetrics.F1, r.OutlierMetrics.Accuracy,
		r.F1ImprovementPct, r.AccuracyImprovementPct,
	)
	return err
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
