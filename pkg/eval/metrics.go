// Package eval scores binary predictions against ground truth and compares
// detectors.
package eval

import (
	"errors"
	"fmt"

	"github.com/hed1ad/trafficeval/pkg/traffic"
)

// ErrLengthMismatch is returned when predictions and ground truth differ in length.
var ErrLengthMismatch = errors.New("prediction and ground truth lengths differ")

// Confusion holds the four-way tally of a binary classification.
// Malicious is the positive class.
type Confusion struct {
	TruePositive  int `json:"true_positive"`
	FalsePositive int `json:"false_positive"`
	FalseNegative int `json:"false_negative"`
	TrueNegative  int `json:"true_negative"`
}

// Metrics are the scores derived from a Confusion.
type Metrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Accuracy  float64 `json:"accuracy"`
}

// Confuse tallies predicted labels against ground truth in the same order.
func Confuse(predicted, truth []traffic.Label) (Confusion, error) {
	if len(predicted) != len(truth) {
		return Confusion{}, fmt.Errorf("%w: %d predictions, %d labels", ErrLengthMismatch, len(predicted), len(truth))
	}

	var c Confusion
	for i, p := range predicted {
		switch {
		case p == traffic.Malicious && truth[i] == traffic.Malicious:
			c.TruePositive++
		case p == traffic.Malicious:
			c.FalsePositive++
		case truth[i] == traffic.Malicious:
			c.FalseNegative++
		default:
			c.TrueNegative++
		}
	}

	return c, nil
}

// Total returns the number of records tallied.
func (c Confusion) Total() int {
	return c.TruePositive + c.FalsePositive + c.FalseNegative + c.TrueNegative
}

// Metrics computes precision, recall, F1 and accuracy. Every ratio with a
// zero denominator is 0.
func (c Confusion) Metrics() Metrics {
	precision := ratio(float64(c.TruePositive), float64(c.TruePositive+c.FalsePositive))
	recall := ratio(float64(c.TruePositive), float64(c.TruePositive+c.FalseNegative))

	return Metrics{
		Precision: precision,
		Recall:    recall,
		F1:        ratio(2*precision*recall, precision+recall),
		Accuracy:  ratio(float64(c.TruePositive+c.TrueNegative), float64(c.Total())),
	}
}

// Evaluate is Confuse followed by Metrics.
func Evaluate(predicted, truth []traffic.Label) (Confusion, Metrics, error) {
	c, err := Confuse(predicted, truth)
	if err != nil {
		return Confusion{}, Metrics{}, err
	}
	return c, c.Metrics(), nil
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
