package pointnet

import (
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// segHead maps per-point features to class log-probabilities.
type segHead struct {
	conv1   *Linear
	bn1     *BatchNorm
	conv2   *Linear
	dropout float64
}

func newSegHead(in, width, classes int, dropout float64, rng *rand.Rand) *segHead {
	return &segHead{
		conv1:   newLinear(in, width, rng),
		bn1:     newBatchNorm(width),
		conv2:   newLinear(width, classes, rng),
		dropout: dropout,
	}
}

func (h *segHead) Forward(x *mat.Dense, mode Mode, rng *rand.Rand) *mat.Dense {
	x = h.conv1.Forward(x)
	x = h.bn1.Forward(x, mode)
	relu(x)
	if mode == Train && rng != nil {
		dropout(x, h.dropout, rng)
	}
	x = h.conv2.Forward(x)
	logSoftmaxRows(x)
	return x
}

func (h *segHead) register(prefix string, ps *paramSet) {
	h.conv1.register(prefix+".conv1", ps)
	h.bn1.register(prefix+".bn1", ps)
	h.conv2.register(prefix+".conv2", ps)
}
