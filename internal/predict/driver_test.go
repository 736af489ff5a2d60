package predict

import (
	"bytes"
	"context"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pointsemantic/internal/export"
	"github.com/banshee-data/pointsemantic/internal/fsutil"
	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/monitoring"
	"github.com/banshee-data/pointsemantic/internal/pointcloud"
	"github.com/banshee-data/pointsemantic/internal/pointnet"
	"github.com/banshee-data/pointsemantic/internal/scene"
)

// colourStep encodes a label in the red channel of a point.
const colourStep = 20

// oracle predicts the label hidden in each point's red channel, mapped
// through predict, with probability 0.9.
type oracle struct {
	k       int
	predict func(label int) int
	calls   int
}

func (o *oracle) Segment(_ context.Context, pc []*mat.Dense) ([]*mat.Dense, error) {
	o.calls++
	out := make([]*mat.Dense, len(pc))
	hit, miss := math.Log(0.9), math.Log(0.1/float64(o.k-1))
	for b, x := range pc {
		n, _ := x.Dims()
		lp := mat.NewDense(n, o.k, nil)
		for i := 0; i < n; i++ {
			label := int(math.Round(x.At(i, 3) * 255 / colourStep))
			want := o.predict(label)
			row := lp.RawRowView(i)
			for j := range row {
				row[j] = miss
				if j == want {
					row[j] = hit
				}
			}
		}
		out[b] = lp
	}
	return out, nil
}

func identity(l int) int { return l }

// regionScene builds n points on a grid whose labels change every eight
// metres along x and cycle through 0..numClasses-1.
func regionScene(t *testing.T, name string, n, numClasses int) *scene.Scene {
	t.Helper()
	cloud := &pointcloud.Cloud{}
	lbls := make([]int, n)
	for i := 0; i < n; i++ {
		x, y := float64(i/64), float64(i%64)
		l := (i / 64 / 8) % numClasses
		lbls[i] = l
		cloud.Points = append(cloud.Points, pointcloud.Point{X: x, Y: y, Z: 0.01 * float64(i%7)})
		cloud.Colors = append(cloud.Colors, [3]uint8{uint8(l * colourStep), 0, 0})
	}
	s, err := scene.NewScene(name, cloud, lbls, scene.Options{
		BoxSizeX: 1000, BoxSizeY: 1000, UseColor: true, NumClasses: numClasses, Seed: 3,
	})
	require.NoError(t, err)
	return s
}

func countLines(t *testing.T, fs fsutil.FileSystem, path string) []string {
	t.Helper()
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestSingleBatchPerfectPrediction(t *testing.T) {
	monitoring.SetLogger(nil)
	fs := fsutil.NewMemoryFileSystem()
	dir := export.OutputDir("result", "pointsemantic_folding", "semantic", "semantic", "validation")
	w, err := export.NewWriter(fs, dir)
	require.NoError(t, err)

	cfg := Config{
		Model: PointSemanticFolding, From: labels.Semantic, To: labels.Semantic, Split: "validation",
		NumSamples: 16, NumPoint: 512, BatchSize: 16, UseColor: true,
	}
	net := &oracle{k: 9, predict: identity}
	d, err := New(cfg, net, w)
	require.NoError(t, err)

	sc := regionScene(t, "synthetic", 8192, 9)
	sum, err := d.Run(context.Background(), []FileData{sc})
	require.NoError(t, err)
	assert.Equal(t, 1, net.calls, "16 samples in batches of 16 is one batch")
	assert.Equal(t, int64(8192), sum.Points)
	assert.Equal(t, []string{"synthetic"}, sum.Files)
	assert.Equal(t, 1, sum.Batches)

	for name, cm := range map[string]interface {
		NumClasses() int
		Count(int, int) int64
		Total() int64
	}{"common": d.CommonMatrix(), "native": d.NativeMatrix()} {
		assert.Equal(t, int64(8192), cm.Total(), name)
		var diag int64
		for c := 0; c < cm.NumClasses(); c++ {
			diag += cm.Count(c, c)
		}
		assert.Equal(t, int64(8192), diag, "%s matrix is diagonal", name)
	}
	assert.Equal(t, 1.0, sum.Common.OverallAccuracy)
	require.NotNil(t, sum.Native)
	assert.Equal(t, 1.0, sum.Native.OverallAccuracy)

	names := export.Names("synthetic", labels.Semantic)
	for _, f := range []struct {
		name    string
		classes int
	}{{names.CommonLabels, labels.CommonNumClasses}, {names.NativeLabels, 9}} {
		lines := countLines(t, fs, filepath.Join(dir, f.name))
		require.Len(t, lines, 8192, f.name)
		for _, l := range lines {
			v, err := strconv.Atoi(l)
			require.NoError(t, err)
			require.True(t, v >= 0 && v < f.classes, "%s label %q", f.name, l)
		}
	}

	probLines := countLines(t, fs, filepath.Join(dir, names.Prob))
	require.Len(t, probLines, 8192)
	assert.Len(t, strings.Fields(probLines[0]), 9)

	for _, p := range []string{names.CommonPCD, names.NativePCD} {
		data, err := fs.ReadFile(filepath.Join(dir, p))
		require.NoError(t, err)
		cloud, err := pointcloud.ReadPCD(bytes.NewReader(data))
		require.NoError(t, err)
		assert.Equal(t, 8192, cloud.Len(), p)
		assert.True(t, cloud.HasColor())
	}

	var out bytes.Buffer
	require.NoError(t, d.PrintMetrics(&out))
	assert.Contains(t, out.String(), "result of common class")
	assert.Contains(t, out.String(), "result of original class")
	assert.Contains(t, out.String(), "Overall accuracy: 1.0000 (8192 points)")
}

func TestCrossDomainCommonTotal(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := Config{
		Model: PBCFolding, From: labels.NPM, To: labels.Semantic, Split: "test",
		NumSamples: 5, NumPoint: 100, BatchSize: 2, UseColor: true,
	}
	// An NPM-trained model names semantic classes by their NPM counterpart.
	semanticToNPM := []int{0, 1, 1, 9, 9, 2, 3, 0, 8}
	net := &oracle{k: 10, predict: func(l int) int { return semanticToNPM[l] }}
	d, err := New(cfg, net, nil)
	require.NoError(t, err)
	assert.Nil(t, d.NativeMatrix())

	files := []FileData{regionScene(t, "a", 2048, 9), regionScene(t, "b", 1024, 9)}
	sum, err := d.Run(context.Background(), files)
	require.NoError(t, err)

	assert.Equal(t, 6, net.calls, "three batches per file")
	assert.Equal(t, int64(2*5*100), sum.Points)
	assert.Equal(t, sum.Points, d.CommonMatrix().Total())
	assert.Nil(t, sum.Native)
	assert.Equal(t, 1.0, sum.Common.OverallAccuracy)

	var out bytes.Buffer
	require.NoError(t, d.PrintMetrics(&out))
	assert.NotContains(t, out.String(), "original class")
}

type nanNet struct{ k int }

func (n nanNet) Segment(_ context.Context, pc []*mat.Dense) ([]*mat.Dense, error) {
	out := make([]*mat.Dense, len(pc))
	for b, x := range pc {
		r, _ := x.Dims()
		lp := mat.NewDense(r, n.k, nil)
		lp.Set(r-1, 0, math.NaN())
		out[b] = lp
	}
	return out, nil
}

type shortNet struct{}

func (shortNet) Segment(_ context.Context, pc []*mat.Dense) ([]*mat.Dense, error) {
	return []*mat.Dense{mat.NewDense(1, 9, nil)}, nil
}

func TestProcessFileFailuresLeaveNoTrace(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := Config{From: labels.Semantic, To: labels.Semantic, NumSamples: 4, NumPoint: 32, BatchSize: 2, UseColor: true}

	tests := []struct {
		name string
		net  Segmenter
		want error
	}{
		{"nan output", nanNet{k: 9}, ErrNonFiniteOutput},
		{"wrong class count", nanNet{k: 4}, ErrOutputShape},
		{"missing samples", shortNet{}, ErrOutputShape},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := fsutil.NewMemoryFileSystem()
			w, err := export.NewWriter(fs, "out")
			require.NoError(t, err)
			d, err := New(cfg, tt.net, w)
			require.NoError(t, err)

			_, err = d.ProcessFile(context.Background(), regionScene(t, "s", 512, 9))
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, d.CommonMatrix().Total())
			assert.Zero(t, d.NativeMatrix().Total())
			files, err := fs.Glob("out/*")
			require.NoError(t, err)
			assert.Empty(t, files)
		})
	}
}

func TestProcessFileNeedsRequestedChannels(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := Config{From: labels.Semantic, To: labels.Semantic, NumSamples: 1, NumPoint: 8, BatchSize: 1, UseGeometry: true}
	d, err := New(cfg, &oracle{k: 9, predict: identity}, nil)
	require.NoError(t, err)
	_, err = d.ProcessFile(context.Background(), regionScene(t, "s", 128, 9))
	assert.ErrorIs(t, err, scene.ErrInvalidOptions)
}

func TestRunCancelled(t *testing.T) {
	monitoring.SetLogger(nil)
	cfg := Config{From: labels.Semantic, To: labels.Semantic, NumSamples: 4, NumPoint: 8, BatchSize: 2, UseColor: true}
	net := &oracle{k: 9, predict: identity}
	d, err := New(cfg, net, nil)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.Run(ctx, []FileData{regionScene(t, "s", 128, 9)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, net.calls)
}

func TestDriverWithNetwork(t *testing.T) {
	monitoring.SetLogger(nil)
	netCfg := pointnet.Config{
		NumClasses:  9,
		AdditionDim: 3,
		SA: [4]pointnet.SetAbstractionConfig{
			{NumPoints: 32, Radius: 4, NumSamples: 8, MLP: []int{8}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 16, Radius: 8, NumSamples: 8, MLP: []int{8}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 8, Radius: 16, NumSamples: 4, MLP: []int{16}, Dropout: 0.6, Alpha: 0.2},
			{NumPoints: 4, Radius: 32, NumSamples: 4, MLP: []int{16}, Dropout: 0.6, Alpha: 0.2},
		},
		FP:          [4][]int{{8}, {8}, {8}, {8}},
		HeadWidth:   8,
		HeadDropout: 0.3,
		Folding:     pointnet.FoldingConfig{GridSize: 65, GridExtent: 0.3, Hidden: 4},
		Workers:     2,
	}
	net, err := pointnet.New(netCfg)
	require.NoError(t, err)

	fs := fsutil.NewMemoryFileSystem()
	w, err := export.NewWriter(fs, "out")
	require.NoError(t, err)
	cfg := Config{From: labels.Semantic, To: labels.Semantic, NumSamples: 3, NumPoint: 64, BatchSize: 2, UseColor: true}
	d, err := New(cfg, net, w)
	require.NoError(t, err)

	res, err := d.ProcessFile(context.Background(), regionScene(t, "net", 1024, 9))
	require.NoError(t, err)
	assert.Len(t, res.Points, 192)
	assert.Len(t, res.Labels, 192)
	assert.Len(t, res.Probabilities, 3)
	assert.Len(t, res.Paths, 5)
	for _, l := range res.Labels {
		assert.True(t, l >= 0 && l < 9)
	}
	for _, p := range res.Probabilities {
		r, _ := p.Dims()
		for i := 0; i < r; i++ {
			var total float64
			for _, v := range p.RawRowView(i) {
				total += v
			}
			assert.InDelta(t, 1, total, 1e-9)
		}
	}
	assert.Equal(t, int64(192), d.CommonMatrix().Total())
	assert.Equal(t, int64(192), d.NativeMatrix().Total())
}
