package features

import "math"

// Scaler standardizes columns with a mean and standard deviation computed
// once over a whole batch.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// Fit computes per-column mean and population standard deviation.
func Fit(data [][]float64) *Scaler {
	if len(data) == 0 {
		return &Scaler{}
	}

	width := len(data[0])
	s := &Scaler{
		Mean: make([]float64, width),
		Std:  make([]float64, width),
	}

	n := float64(len(data))
	for _, row := range data {
		for j, v := range row {
			s.Mean[j] += v
		}
	}
	for j := range s.Mean {
		s.Mean[j] /= n
	}

	constant := make([]bool, width)
	for j := range constant {
		constant[j] = true
	}
	for _, row := range data {
		for j, v := range row {
			d := v - s.Mean[j]
			s.Std[j] += d * d
			if v != data[0][j] {
				constant[j] = false
			}
		}
	}
	for j := range s.Std {
		// A constant column can still accumulate rounding error in the mean.
		if constant[j] {
			s.Std[j] = 0
			continue
		}
		s.Std[j] = math.Sqrt(s.Std[j] / n)
	}

	return s
}

// Transform returns a scaled copy of data. Columns with zero variance
// scale to 0.
func (s *Scaler) Transform(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for i, row := range data {
		scaled := make([]float64, len(row))
		for j, v := range row {
			if j >= len(s.Std) || s.Std[j] == 0 {
				continue
			}
			scaled[j] = (v - s.Mean[j]) / s.Std[j]
		}
		out[i] = scaled
	}
	return out
}
