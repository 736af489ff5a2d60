// Package scene owns whole LiDAR scenes and draws fixed-size training-style
// samples from them: a random centre point, every point inside an
// axis-aligned x/y box around it, subsampled or resampled to the requested
// count and shifted into a box-local frame.
package scene
