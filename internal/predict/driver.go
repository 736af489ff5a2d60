package predict

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pointsemantic/internal/export"
	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/metrics"
	"github.com/banshee-data/pointsemantic/internal/monitoring"
	"github.com/banshee-data/pointsemantic/internal/pointcloud"
	"github.com/banshee-data/pointsemantic/internal/scene"
)

// Segmenter produces per-point class log-probabilities for a batch of
// samples, one N×K matrix per sample.
type Segmenter interface {
	Segment(ctx context.Context, pc []*mat.Dense) ([]*mat.Dense, error)
}

// FileData is a scene the driver can sample from.
type FileData interface {
	Name() string
	SampleBatch(batchSize, numPoints int) (*scene.Batch, error)
}

// FileResult is everything collected for one scene, in sample order.
// Overlapping samples repeat points; nothing is deduplicated.
type FileResult struct {
	Name          string
	Points        []pointcloud.Point
	Labels        []int        // predictions in the From dataset's space
	CommonLabels  []int        // predictions in the common space
	Probabilities []*mat.Dense // one N×K matrix per sample
	BatchTimes    []time.Duration
	Paths         []string // exported files, empty without a writer
}

// Driver runs the per-file, per-batch prediction loop.
type Driver struct {
	cfg    Config
	net    Segmenter
	out    *export.Writer
	common *metrics.ConfusionMatrix
	native *metrics.ConfusionMatrix // nil unless From == To

	batchTimes []float64
	points     int64
	files      []string
}

// New returns a driver. out may be nil to skip exporting.
func New(cfg Config, net Segmenter, out *export.Writer) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	d := &Driver{
		cfg:    cfg,
		net:    net,
		out:    out,
		common: metrics.NewConfusionMatrix(labels.CommonNumClasses),
	}
	if cfg.Comparable() {
		d.native = metrics.NewConfusionMatrix(cfg.From.NumClasses())
	}
	return d, nil
}

// CommonMatrix is the run-wide confusion matrix in the common space.
func (d *Driver) CommonMatrix() *metrics.ConfusionMatrix { return d.common }

// NativeMatrix is the run-wide native confusion matrix, or nil when the
// source and target datasets differ.
func (d *Driver) NativeMatrix() *metrics.ConfusionMatrix { return d.native }

// Run processes files in order and summarises the run.
func (d *Driver) Run(ctx context.Context, files []FileData) (*Summary, error) {
	for _, f := range files {
		monitoring.Logf("Processing %s", f.Name())
		if _, err := d.ProcessFile(ctx, f); err != nil {
			return nil, fmt.Errorf("scene %s: %w", f.Name(), err)
		}
	}
	return d.Summary(), nil
}

// ProcessFile samples, predicts and exports one scene, then adds its
// confusion counts to the run totals.
func (d *Driver) ProcessFile(ctx context.Context, f FileData) (*FileResult, error) {
	res := &FileResult{Name: f.Name()}
	common := metrics.NewConfusionMatrix(labels.CommonNumClasses)
	var native *metrics.ConfusionMatrix
	if d.native != nil {
		native = metrics.NewConfusionMatrix(d.native.NumClasses())
	}

	for i, size := range d.cfg.BatchSizes() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := d.processBatch(ctx, f, size, res, common, native); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	if d.out != nil {
		if err := d.export(res); err != nil {
			return nil, err
		}
	}

	if err := d.common.Merge(common); err != nil {
		return nil, err
	}
	if native != nil {
		if err := d.native.Merge(native); err != nil {
			return nil, err
		}
	}
	for _, t := range res.BatchTimes {
		d.batchTimes = append(d.batchTimes, t.Seconds())
	}
	d.points += int64(len(res.Points))
	d.files = append(d.files, res.Name)
	return res, nil
}

func (d *Driver) processBatch(ctx context.Context, f FileData, size int, res *FileResult, common, native *metrics.ConfusionMatrix) error {
	batch, err := f.SampleBatch(size, d.cfg.NumPoint)
	if err != nil {
		return err
	}
	input, err := batch.Input(d.cfg.UseColor, d.cfg.UseGeometry)
	if err != nil {
		return err
	}

	stop := monitoring.Timed(fmt.Sprintf("Batch size: %d", size))
	logProbs, err := d.net.Segment(ctx, input)
	elapsed := stop()
	if err != nil {
		return err
	}
	if len(logProbs) != size {
		return fmt.Errorf("%w: %d outputs for %d samples", ErrOutputShape, len(logProbs), size)
	}
	res.BatchTimes = append(res.BatchTimes, elapsed)

	k := d.cfg.From.NumClasses()
	for b, lp := range logProbs {
		if r, c := lp.Dims(); r != d.cfg.NumPoint || c != k {
			return fmt.Errorf("%w: sample %d is %dx%d, want %dx%d", ErrOutputShape, b, r, c, d.cfg.NumPoint, k)
		}
		pred, probs, err := decode(lp)
		if err != nil {
			return fmt.Errorf("sample %d: %w", b, err)
		}
		truth := batch.Labels[b]
		commonTruth, err := labels.ToCommon(truth, d.cfg.To)
		if err != nil {
			return err
		}
		commonPred, err := labels.ToCommon(pred, d.cfg.From)
		if err != nil {
			return err
		}
		if err := common.IncrementFromList(commonTruth, commonPred); err != nil {
			return err
		}
		if native != nil {
			if err := native.IncrementFromList(truth, pred); err != nil {
				return err
			}
		}

		pts := batch.Points[b]
		for i := 0; i < d.cfg.NumPoint; i++ {
			row := pts.RawRowView(i)
			res.Points = append(res.Points, pointcloud.Point{X: row[0], Y: row[1], Z: row[2]})
		}
		res.Labels = append(res.Labels, pred...)
		res.CommonLabels = append(res.CommonLabels, commonPred...)
		res.Probabilities = append(res.Probabilities, probs)
	}
	return nil
}

// decode returns the arg-max label and the probabilities of every row of
// log-probabilities lp.
func decode(lp *mat.Dense) ([]int, *mat.Dense, error) {
	r, c := lp.Dims()
	pred := make([]int, r)
	probs := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		row := lp.RawRowView(i)
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 1) {
				return nil, nil, fmt.Errorf("%w: row %d class %d is %v", ErrNonFiniteOutput, i, j, v)
			}
		}
		pred[i] = floats.MaxIdx(row)
		p := probs.RawRowView(i)
		for j, v := range row {
			p[j] = math.Exp(v)
		}
	}
	return pred, probs, nil
}

func (d *Driver) export(res *FileResult) error {
	names := export.Names(res.Name, d.cfg.From)
	steps := []struct {
		what  string
		write func() (string, error)
	}{
		{"sparse common pcd", func() (string, error) {
			return d.out.WritePointCloud(names.CommonPCD, res.Points, res.CommonLabels, labels.CommonSpace)
		}},
		{"sparse common labels", func() (string, error) {
			return d.out.WriteLabels(names.CommonLabels, res.CommonLabels)
		}},
		{"sparse probs", func() (string, error) {
			return d.out.WriteProbabilities(names.Prob, res.Probabilities)
		}},
		{"sparse pcd", func() (string, error) {
			return d.out.WritePointCloud(names.NativePCD, res.Points, res.Labels, labels.NativeSpace(d.cfg.From))
		}},
		{"sparse labels", func() (string, error) {
			return d.out.WriteLabels(names.NativeLabels, res.Labels)
		}},
	}
	for _, s := range steps {
		path, err := s.write()
		if err != nil {
			return err
		}
		monitoring.Logf("Exported %s to %s", s.what, path)
		res.Paths = append(res.Paths, path)
	}
	return nil
}

// Summary describes a finished run.
type Summary struct {
	Model            ModelName
	From, To         labels.Dataset
	Split            string
	Files            []string
	Points           int64
	Batches          int
	BatchLatencyMean time.Duration
	BatchLatencyStd  time.Duration
	Common           metrics.Report
	Native           *metrics.Report // nil unless From == To
}

// Summary snapshots the run so far.
func (d *Driver) Summary() *Summary {
	s := &Summary{
		Model:   d.cfg.Model,
		From:    d.cfg.From,
		To:      d.cfg.To,
		Split:   d.cfg.Split,
		Files:   append([]string(nil), d.files...),
		Points:  d.points,
		Batches: len(d.batchTimes),
		Common:  d.common.Report(d.cfg.Policy),
	}
	if len(d.batchTimes) > 0 {
		mean, std := stat.MeanStdDev(d.batchTimes, nil)
		if len(d.batchTimes) < 2 {
			std = 0
		}
		s.BatchLatencyMean = time.Duration(mean * float64(time.Second))
		s.BatchLatencyStd = time.Duration(std * float64(time.Second))
	}
	if d.native != nil {
		r := d.native.Report(d.cfg.Policy)
		s.Native = &r
	}
	return s
}

// PrintMetrics writes the common-space metrics and, when comparable, the
// native-space metrics.
func (d *Driver) PrintMetrics(w io.Writer) error {
	fmt.Fprintln(w, "the following is the result of common class:")
	if err := d.common.PrintMetrics(w, labels.CommonClassNames(), d.cfg.Policy); err != nil {
		return err
	}
	if d.native == nil {
		return nil
	}
	fmt.Fprintln(w, strings.Repeat("#", 100))
	fmt.Fprintln(w, "the following is the result of original class:")
	return d.native.PrintMetrics(w, d.cfg.From.ClassNames(), d.cfg.Policy)
}
