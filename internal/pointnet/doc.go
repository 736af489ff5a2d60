// Package pointnet implements the two-branch point-cloud segmentation and
// reconstruction network on dense CPU matrices.
//
// Both input branches run through one shared hierarchical encoder of four
// set-abstraction stages with graph-attention aggregation. Branch 1 is
// decoded by four feature-propagation stages and a segmentation head into
// per-point class log-probabilities; branch 2's deepest features are
// max-pooled into a global code and folded from a 2D grid into a fixed-size
// reconstructed point set.
//
// Every per-point tensor is a *mat.Dense with one row per point. Pointwise
// (kernel-size 1) convolutions are plain matrix products.
package pointnet
