package pointnet

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Config sizes the network.
type Config struct {
	NumClasses  int
	AdditionDim int // per-point feature columns after x, y, z

	SA [4]SetAbstractionConfig
	// FP holds the MLP widths of the four propagation stages, deepest first
	// (fp4, fp3, fp2, fp1). The shallowest stage has no skip connection.
	FP [4][]int

	HeadWidth   int
	HeadDropout float64
	Folding     FoldingConfig

	Seed    int64 // parameter initialisation and train-mode dropout
	Workers int   // concurrent samples in Forward; <= 0 uses GOMAXPROCS
}

// DefaultConfig returns the production architecture.
func DefaultConfig(numClasses, additionDim int) Config {
	return Config{
		NumClasses:  numClasses,
		AdditionDim: additionDim,
		SA: [4]SetAbstractionConfig{
			{NumPoints: 1024, Radius: 0.5, NumSamples: 64, MLP: []int{32, 64}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 256, Radius: 1, NumSamples: 48, MLP: []int{64, 128}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 64, Radius: 2, NumSamples: 32, MLP: []int{128, 256}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 16, Radius: 4, NumSamples: 16, MLP: []int{256, 512}, Dropout: 0.6, Alpha: 0.2},
		},
		FP:          [4][]int{{256, 256}, {256, 256}, {256, 128}, {128, 128}},
		HeadWidth:   128,
		HeadDropout: 0.3,
		Folding:     FoldingConfig{GridSize: 65, GridExtent: 0.3, Hidden: 512},
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.NumClasses < 1 {
		return fmt.Errorf("%w: num classes %d", ErrInvalidConfig, c.NumClasses)
	}
	if c.AdditionDim < 0 {
		return fmt.Errorf("%w: addition dim %d", ErrInvalidConfig, c.AdditionDim)
	}
	prev := 0
	for i, sa := range c.SA {
		switch {
		case sa.NumPoints < 1:
			return fmt.Errorf("%w: sa%d num points %d", ErrInvalidConfig, i+1, sa.NumPoints)
		case i > 0 && sa.NumPoints > prev:
			return fmt.Errorf("%w: sa%d samples %d points from %d", ErrInvalidConfig, i+1, sa.NumPoints, prev)
		case sa.Radius <= 0:
			return fmt.Errorf("%w: sa%d radius %v", ErrInvalidConfig, i+1, sa.Radius)
		case sa.NumSamples < 1:
			return fmt.Errorf("%w: sa%d num samples %d", ErrInvalidConfig, i+1, sa.NumSamples)
		case len(sa.MLP) == 0 || !positive(sa.MLP):
			return fmt.Errorf("%w: sa%d mlp %v", ErrInvalidConfig, i+1, sa.MLP)
		case sa.Dropout < 0 || sa.Dropout >= 1:
			return fmt.Errorf("%w: sa%d dropout %v", ErrInvalidConfig, i+1, sa.Dropout)
		}
		prev = sa.NumPoints
	}
	for i, fp := range c.FP {
		if len(fp) == 0 || !positive(fp) {
			return fmt.Errorf("%w: fp%d mlp %v", ErrInvalidConfig, len(c.FP)-i, fp)
		}
	}
	if c.HeadWidth < 1 {
		return fmt.Errorf("%w: head width %d", ErrInvalidConfig, c.HeadWidth)
	}
	if c.HeadDropout < 0 || c.HeadDropout >= 1 {
		return fmt.Errorf("%w: head dropout %v", ErrInvalidConfig, c.HeadDropout)
	}
	if c.Folding.GridSize < 1 || c.Folding.Hidden < 1 || c.Folding.GridExtent < 0 {
		return fmt.Errorf("%w: folding %+v", ErrInvalidConfig, c.Folding)
	}
	return nil
}

func positive(xs []int) bool {
	for _, x := range xs {
		if x < 1 {
			return false
		}
	}
	return true
}

// PointSemantic is the shared-encoder segmentation and folding network.
// Parameters are read-only during Forward, so concurrent Forward calls are
// safe; SetMode and LoadStateDict must not race with them.
type PointSemantic struct {
	cfg  Config
	mode Mode
	sa   [4]*SetAbstraction
	fp   [4]*FeaturePropagation // fp4, fp3, fp2, fp1
	head *segHead
	fold *FoldingDecoder
}

// Output holds the per-sample results of Forward.
type Output struct {
	LogProbs      []*mat.Dense // N×NumClasses per sample, branch 1
	Reconstructed []*mat.Dense // GridSize²×3 per sample, branch 2
}

// New builds a network with seeded random parameters, in Eval mode.
func New(cfg Config) (*PointSemantic, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	m := &PointSemantic{cfg: cfg, mode: Eval}
	feat := cfg.AdditionDim
	for i, sc := range cfg.SA {
		m.sa[i] = newSetAbstraction(sc, feat, rng)
		feat = m.sa[i].OutDim()
	}
	// Skip widths for fp4..fp1 are sa3, sa2, sa1 and none.
	skips := [4]int{m.sa[2].OutDim(), m.sa[1].OutDim(), m.sa[0].OutDim(), 0}
	coarse := m.sa[3].OutDim()
	for i, widths := range cfg.FP {
		m.fp[i] = newFeaturePropagation(skips[i]+coarse, widths, rng)
		coarse = m.fp[i].OutDim()
	}
	m.head = newSegHead(coarse, cfg.HeadWidth, cfg.NumClasses, cfg.HeadDropout, rng)
	m.fold = newFoldingDecoder(cfg.Folding, m.sa[3].OutDim(), rng)
	return m, nil
}

// Config returns the configuration the network was built with.
func (m *PointSemantic) Config() Config { return m.cfg }

// Mode reports the current mode.
func (m *PointSemantic) Mode() Mode { return m.mode }

// SetMode switches between Train and Eval.
func (m *PointSemantic) SetMode(mode Mode) { m.mode = mode }

// NumReconstructed is the number of points each folded reconstruction has.
func (m *PointSemantic) NumReconstructed() int { return m.cfg.Folding.NumPoints() }

type level struct {
	xyz, feats *mat.Dense
}

// Forward runs branch 1 through encoder, propagation and head, and branch 2
// through encoder and folding decoder. Every sample in pc1 and pc2 must have
// the same N×(3+AdditionDim) shape.
func (m *PointSemantic) Forward(ctx context.Context, pc1, pc2 []*mat.Dense) (*Output, error) {
	if len(pc1) != len(pc2) {
		return nil, fmt.Errorf("forward: batch sizes %d and %d: %w", len(pc1), len(pc2), ErrShapeMismatch)
	}
	if err := m.checkBatch(pc1, pc2); err != nil {
		return nil, err
	}
	out := &Output{
		LogProbs:      make([]*mat.Dense, len(pc1)),
		Reconstructed: make([]*mat.Dense, len(pc1)),
	}
	err := m.eachSample(ctx, len(pc1), func(b int) error {
		lp, err := m.segment(pc1[b], m.sampleRNG(b, 0))
		if err != nil {
			return err
		}
		rec, err := m.reconstruct(pc2[b], m.sampleRNG(b, 1))
		if err != nil {
			return err
		}
		out.LogProbs[b], out.Reconstructed[b] = lp, rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Segment runs only the segmentation branch and returns per-sample
// log-probabilities. In Eval mode it equals Forward(pc, pc).LogProbs.
func (m *PointSemantic) Segment(ctx context.Context, pc []*mat.Dense) ([]*mat.Dense, error) {
	if err := m.checkBatch(pc); err != nil {
		return nil, err
	}
	out := make([]*mat.Dense, len(pc))
	err := m.eachSample(ctx, len(pc), func(b int) error {
		lp, err := m.segment(pc[b], m.sampleRNG(b, 0))
		out[b] = lp
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (m *PointSemantic) checkBatch(batches ...[]*mat.Dense) error {
	if len(batches[0]) == 0 {
		return fmt.Errorf("empty batch: %w", ErrShapeMismatch)
	}
	n, c := batches[0][0].Dims()
	for _, batch := range batches {
		for b, s := range batch {
			if sn, sc := s.Dims(); sn != n || sc != c {
				return fmt.Errorf("sample %d is %dx%d, want %dx%d: %w", b, sn, sc, n, c, ErrShapeMismatch)
			}
		}
	}
	if c-3 != m.cfg.AdditionDim {
		return fmt.Errorf("%d feature columns, want %d: %w", c-3, m.cfg.AdditionDim, ErrAdditionDim)
	}
	if n < m.cfg.SA[0].NumPoints {
		return fmt.Errorf("%d points, first stage samples %d: %w", n, m.cfg.SA[0].NumPoints, ErrTooFewPoints)
	}
	return nil
}

func (m *PointSemantic) eachSample(ctx context.Context, n int, fn func(b int) error) error {
	workers := m.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for b := 0; b < n; b++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(b)
		})
	}
	return g.Wait()
}

// sampleRNG returns the dropout source of one sample and branch, or nil in
// Eval mode.
func (m *PointSemantic) sampleRNG(b, branch int) *rand.Rand {
	if m.mode != Train {
		return nil
	}
	return rand.New(rand.NewSource(m.cfg.Seed + int64(2*b+branch) + 1))
}

func (m *PointSemantic) encode(pc *mat.Dense, rng *rand.Rand) ([5]level, error) {
	var levels [5]level
	n, c := pc.Dims()
	levels[0].xyz = mat.DenseCopyOf(pc.Slice(0, n, 0, 3))
	if c > 3 {
		levels[0].feats = mat.DenseCopyOf(pc.Slice(0, n, 3, c))
	}
	for i, sa := range m.sa {
		xyz, feats, err := sa.Forward(levels[i].xyz, levels[i].feats, m.mode, rng)
		if err != nil {
			return levels, fmt.Errorf("sa%d: %w", i+1, err)
		}
		levels[i+1] = level{xyz: xyz, feats: feats}
	}
	return levels, nil
}

func (m *PointSemantic) segment(pc *mat.Dense, rng *rand.Rand) (*mat.Dense, error) {
	l, err := m.encode(pc, rng)
	if err != nil {
		return nil, err
	}
	feats := l[4].feats
	for i, fp := range m.fp {
		fine := 3 - i
		skip := NoSkip()
		if fine > 0 {
			skip = WithSkip(l[fine].feats)
		}
		feats, err = fp.Forward(l[fine].xyz, l[fine+1].xyz, skip, feats, m.mode)
		if err != nil {
			return nil, fmt.Errorf("fp%d: %w", fine+1, err)
		}
	}
	return m.head.Forward(feats, m.mode, rng), nil
}

func (m *PointSemantic) reconstruct(pc *mat.Dense, rng *rand.Rand) (*mat.Dense, error) {
	l, err := m.encode(pc, rng)
	if err != nil {
		return nil, err
	}
	return m.fold.Forward(globalMaxPool(l[4].feats))
}

func globalMaxPool(feats *mat.Dense) []float64 {
	r, _ := feats.Dims()
	code := append([]float64(nil), feats.RawRowView(0)...)
	for i := 1; i < r; i++ {
		for j, v := range feats.RawRowView(i) {
			if v > code[j] {
				code[j] = v
			}
		}
	}
	return code
}

// Train switches to Train mode.
func (m *PointSemantic) Train() { m.mode = Train }

// Eval switches to Eval mode.
func (m *PointSemantic) Eval() { m.mode = Eval }
