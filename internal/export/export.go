// Package export writes per-scene prediction outputs: coloured point clouds,
// label lists and class-probability tables.
package export

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pointsemantic/internal/fsutil"
	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/pointcloud"
	"github.com/banshee-data/pointsemantic/internal/security"
)

// OutputDir is <root>/sparse/<model>_<from>2<to>_<split>.
func OutputDir(root, model, from, to, split string) string {
	sub := security.SanitizeFilename(model + "_" + from + "2" + to + "_" + split)
	return filepath.Join(root, "sparse", sub)
}

// FileNames are the output file names for one scene.
type FileNames struct {
	CommonPCD    string // <prefix>_common.pcd
	CommonLabels string // <prefix>_common.labels
	Prob         string // <prefix>.prob
	NativePCD    string // <prefix>_<from>.pcd
	NativeLabels string // <prefix>_<from>.labels
}

// Names derives the output file names of a scene predicted by a model
// trained on from.
func Names(prefix string, from labels.Dataset) FileNames {
	return FileNames{
		CommonPCD:    prefix + "_common.pcd",
		CommonLabels: prefix + "_common.labels",
		Prob:         prefix + ".prob",
		NativePCD:    prefix + "_" + from.String() + ".pcd",
		NativeLabels: prefix + "_" + from.String() + ".labels",
	}
}

// Writer creates output files inside Dir. Every name must be a bare file
// name; anything that would resolve outside Dir is rejected.
type Writer struct {
	FS  fsutil.FileSystem
	Dir string
}

// NewWriter creates dir if needed.
func NewWriter(fs fsutil.FileSystem, dir string) (*Writer, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &Writer{FS: fs, Dir: dir}, nil
}

// WritePointCloud writes points coloured by their labels in space.
func (w *Writer) WritePointCloud(name string, points []pointcloud.Point, lbls []int, space labels.Space) (string, error) {
	if len(points) != len(lbls) {
		return "", fmt.Errorf("export %s: %d points, %d labels", name, len(points), len(lbls))
	}
	colors, err := labels.ColorsFor(lbls, space)
	if err != nil {
		return "", fmt.Errorf("export %s: %w", name, err)
	}
	return w.create(name, func(out io.Writer) error {
		return pointcloud.WritePCD(out, points, colors)
	})
}

// WriteLabels writes one label per line.
func (w *Writer) WriteLabels(name string, lbls []int) (string, error) {
	return w.create(name, func(out io.Writer) error {
		return pointcloud.WriteLabels(out, lbls)
	})
}

// WriteProbabilities writes every row of every matrix as space-separated
// fixed-point values, in order.
func (w *Writer) WriteProbabilities(name string, rows []*mat.Dense) (string, error) {
	return w.create(name, func(out io.Writer) error {
		bw := bufio.NewWriter(out)
		buf := make([]byte, 0, 32)
		for _, m := range rows {
			r, _ := m.Dims()
			for i := 0; i < r; i++ {
				for j, v := range m.RawRowView(i) {
					if j > 0 {
						bw.WriteByte(' ')
					}
					buf = strconv.AppendFloat(buf[:0], v, 'f', 6, 64)
					bw.Write(buf)
				}
				bw.WriteByte('\n')
			}
		}
		return bw.Flush()
	})
}

func (w *Writer) create(name string, write func(io.Writer) error) (string, error) {
	path, err := security.JoinWithin(w.Dir, name)
	if err != nil {
		return "", err
	}
	f, err := w.FS.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close %s: %w", path, err)
	}
	return path, nil
}
