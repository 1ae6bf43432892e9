package sim

import "gonum.org/v1/gonum/stat"

// Scaler is the feature-scaling collaborator. When configured, the Simulator
// fits it on the training contexts and applies it to both train and test
// contexts before any policy sees them.
type Scaler interface {
	FitTransform(contexts [][]float64) [][]float64
	Transform(contexts [][]float64) [][]float64
}

// StandardScaler scales each feature column to zero mean and unit standard
// deviation, estimated from the fitted contexts.
type StandardScaler struct {
	mean []float64
	std  []float64
}

// NewStandardScaler creates an unfitted standard scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// FitTransform estimates per-column mean and standard deviation from the
// given contexts and returns them scaled.
func (s *StandardScaler) FitTransform(contexts [][]float64) [][]float64 {
	width := len(contexts[0])
	s.mean = make([]float64, width)
	s.std = make([]float64, width)
	column := make([]float64, len(contexts))
	for f := 0; f < width; f++ {
		for i := range contexts {
			column[i] = contexts[i][f]
		}
		mean, std := stat.MeanStdDev(column, nil)
		if std == 0 || len(contexts) < 2 {
			std = 1
		}
		s.mean[f], s.std[f] = mean, std
	}
	return s.Transform(contexts)
}

// Transform scales contexts with the fitted column statistics.
func (s *StandardScaler) Transform(contexts [][]float64) [][]float64 {
	out := make([][]float64, len(contexts))
	for i, row := range contexts {
		scaled := make([]float64, len(row))
		for f, v := range row {
			scaled[f] = (v - s.mean[f]) / s.std[f]
		}
		out[i] = scaled
	}
	return out
}
