// Package detectors provides the malicious traffic detectors compared by the
// evaluation pipeline.
package detectors

import (
	"errors"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

var (
	// ErrInvalidConfig is returned when a detector is built with unusable
	// parameters. It is reported before any data is processed.
	ErrInvalidConfig = errors.New("invalid detector config")

	// ErrEmptyData is returned when a model is fitted on an empty batch.
	ErrEmptyData = errors.New("empty training data")

	// ErrNotTrained is returned when scoring with an unfitted model.
	ErrNotTrained = errors.New("model not trained")
)

// Detector names used in results and reports.
const (
	NameThreshold = "threshold"
	NameOutlier   = "isolation_forest"
)

// Model is the common interface of unsupervised scoring models.
type Model interface {
	// Fit trains the model on a batch.
	// data is a 2D slice where each row is a sample and each column is a feature.
	Fit(data [][]float64) error

	// Predict returns anomaly scores for the given samples.
	// Scores are in (0, 1] where higher values indicate anomalies.
	Predict(data [][]float64) ([]float64, error)

	// Save serializes the trained model to bytes.
	Save() ([]byte, error)

	// Load deserializes a trained model from bytes.
	Load(data []byte) error
}

// Result is the decision of one detector for one record.
type Result struct {
	// RecordID is the position of the record in its batch.
	RecordID int `json:"record_id"`
	// Predicted is the label assigned by the detector.
	Predicted traffic.Label `json:"predicted_label"`
	// Detector names the detector that produced the result.
	Detector string `json:"detector_name"`
	// Score is the anomaly score, or the per-source count for rule detectors.
	Score float64 `json:"score"`
}

// Predictions returns the predicted labels of results in order.
func Predictions(results []Result) []traffic.Label {
	labels := make([]traffic.Label, len(results))
	for i, r := range results {
		labels[i] = r.Predicted
	}
	return labels
}

// Flagged returns the number of results predicted malicious.
func Flagged(results []Result) int {
	var n int
	for _, r := range results {
		if r.Predicted == traffic.Malicious {
			n++
		}
	}
	return n
}
