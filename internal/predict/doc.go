// Package predict drives a trained segmentation network over whole scenes.
//
// For every scene it draws NumSamples samples in batches, takes the arg-max
// class of every sampled point, maps predictions and ground truth into the
// common label space, and on completion exports the collected points,
// labels and probabilities before folding the scene's confusion counts into
// the run totals. A scene that fails part-way contributes nothing.
package predict
