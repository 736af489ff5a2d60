package pointnet

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Linear is a pointwise (kernel size 1) convolution: y = xW + b for each row.
type Linear struct {
	In, Out int
	W       *mat.Dense // In×Out
	B       []float64
}

func newLinear(in, out int, rng *rand.Rand) *Linear {
	bound := 1 / math.Sqrt(float64(in))
	w := make([]float64, in*out)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * bound
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = (rng.Float64()*2 - 1) * bound
	}
	return &Linear{In: in, Out: out, W: mat.NewDense(in, out, w), B: b}
}

// Forward applies the layer to every row of x.
func (l *Linear) Forward(x *mat.Dense) *mat.Dense {
	r, _ := x.Dims()
	y := mat.NewDense(r, l.Out, nil)
	y.Mul(x, l.W)
	addRowVector(y, l.B)
	return y
}

func (l *Linear) register(prefix string, ps *paramSet) {
	ps.add(prefix+".weight", []int{l.In, l.Out}, l.W.RawMatrix().Data)
	ps.add(prefix+".bias", []int{l.Out}, l.B)
}

// addRowVector adds v to every row of y in place.
func addRowVector(y *mat.Dense, v []float64) {
	r, _ := y.Dims()
	for i := 0; i < r; i++ {
		floats.Add(y.RawRowView(i), v)
	}
}

// BatchNorm normalises each channel (column).
type BatchNorm struct {
	C           int
	Gamma, Beta []float64
	RunningMean []float64
	RunningVar  []float64
	Eps         float64
}

func newBatchNorm(c int) *BatchNorm {
	bn := &BatchNorm{
		C:           c,
		Gamma:       make([]float64, c),
		Beta:        make([]float64, c),
		RunningMean: make([]float64, c),
		RunningVar:  make([]float64, c),
		Eps:         1e-5,
	}
	for i := 0; i < c; i++ {
		bn.Gamma[i] = 1
		bn.RunningVar[i] = 1
	}
	return bn
}

// Forward normalises x in place and returns it. In Train mode the statistics
// come from the rows of x; running statistics are never updated here.
func (bn *BatchNorm) Forward(x *mat.Dense, mode Mode) *mat.Dense {
	r, c := x.Dims()
	mean, variance := bn.RunningMean, bn.RunningVar
	if mode == Train {
		mean = make([]float64, c)
		variance = make([]float64, c)
		for i := 0; i < r; i++ {
			floats.Add(mean, x.RawRowView(i))
		}
		floats.Scale(1/float64(r), mean)
		for i := 0; i < r; i++ {
			row := x.RawRowView(i)
			for j, v := range row {
				d := v - mean[j]
				variance[j] += d * d
			}
		}
		floats.Scale(1/float64(r), variance)
	}

	scale := make([]float64, c)
	shift := make([]float64, c)
	for j := 0; j < c; j++ {
		scale[j] = bn.Gamma[j] / math.Sqrt(variance[j]+bn.Eps)
		shift[j] = bn.Beta[j] - mean[j]*scale[j]
	}
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		floats.Mul(row, scale)
		floats.Add(row, shift)
	}
	return x
}

func (bn *BatchNorm) register(prefix string, ps *paramSet) {
	ps.add(prefix+".weight", []int{bn.C}, bn.Gamma)
	ps.add(prefix+".bias", []int{bn.C}, bn.Beta)
	ps.add(prefix+".running_mean", []int{bn.C}, bn.RunningMean)
	ps.add(prefix+".running_var", []int{bn.C}, bn.RunningVar)
}

// mlp is a chain of Linear → BatchNorm → ReLU blocks.
type mlp struct {
	convs []*Linear
	bns   []*BatchNorm
}

func newMLP(in int, widths []int, rng *rand.Rand) *mlp {
	m := &mlp{}
	for _, w := range widths {
		m.convs = append(m.convs, newLinear(in, w, rng))
		m.bns = append(m.bns, newBatchNorm(w))
		in = w
	}
	return m
}

func (m *mlp) outDim() int {
	return m.convs[len(m.convs)-1].Out
}

func (m *mlp) inDim() int {
	return m.convs[0].In
}

func (m *mlp) Forward(x *mat.Dense, mode Mode) *mat.Dense {
	for i := range m.convs {
		x = m.convs[i].Forward(x)
		x = m.bns[i].Forward(x, mode)
		relu(x)
	}
	return x
}

func (m *mlp) register(prefix string, ps *paramSet) {
	for i := range m.convs {
		m.convs[i].register(prefixf("%s.conv.%d", prefix, i), ps)
		m.bns[i].register(prefixf("%s.bn.%d", prefix, i), ps)
	}
}

func relu(x *mat.Dense) {
	raw := x.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}

func leakyRelu(v, slope float64) float64 {
	if v < 0 {
		return v * slope
	}
	return v
}

// dropout zeroes each element with probability p and rescales survivors.
func dropout(x *mat.Dense, p float64, rng *rand.Rand) {
	if p <= 0 {
		return
	}
	keep := 1 / (1 - p)
	x.Apply(func(_, _ int, v float64) float64 {
		if rng.Float64() < p {
			return 0
		}
		return v * keep
	}, x)
}

// logSoftmaxRows replaces every row with its log-softmax.
func logSoftmaxRows(x *mat.Dense) {
	r, _ := x.Dims()
	for i := 0; i < r; i++ {
		row := x.RawRowView(i)
		floats.AddConst(-floats.LogSumExp(row), row)
	}
}
