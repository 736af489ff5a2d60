package pointnet

import "errors"

var (
	// ErrShapeMismatch is returned when inputs disagree in shape.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrAdditionDim is returned when the per-point feature width differs
	// from the configured addition dimension.
	ErrAdditionDim = errors.New("additional feature dimension mismatch")
	// ErrTooFewPoints is returned when a stage receives fewer points than it samples.
	ErrTooFewPoints = errors.New("too few points")
	// ErrCheckpointMismatch is returned when a state dict does not fit the network.
	ErrCheckpointMismatch = errors.New("checkpoint does not match network")
	// ErrInvalidConfig is returned by New for unusable configurations.
	ErrInvalidConfig = errors.New("invalid network config")
)
