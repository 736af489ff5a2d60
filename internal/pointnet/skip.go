package pointnet

import "gonum.org/v1/gonum/mat"

// Skip is the optional skip connection of a feature-propagation stage.
type Skip struct {
	features *mat.Dense
}

// WithSkip concatenates f ahead of the interpolated features.
func WithSkip(f *mat.Dense) Skip { return Skip{features: f} }

// NoSkip propagates interpolated features only.
func NoSkip() Skip { return Skip{} }

// Features returns the skip features and whether there are any.
func (s Skip) Features() (*mat.Dense, bool) {
	return s.features, s.features != nil
}

// Dim is the column count contributed by the skip connection.
func (s Skip) Dim() int {
	if s.features == nil {
		return 0
	}
	_, c := s.features.Dims()
	return c
}
