package scene

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/pointsemantic/internal/fsutil"
	"github.com/banshee-data/pointsemantic/internal/monitoring"
	"github.com/banshee-data/pointsemantic/internal/pointcloud"
)

// ErrNoScenes is returned when a split directory holds no scenes.
var ErrNoScenes = errors.New("no scenes found")

// Dataset is the ordered set of scenes of one split.
type Dataset struct {
	Split  string
	Scenes []*Scene
}

// OpenDataset loads every <dataPath>/<split>/<name>.pcd together with its
// <name>.labels file. Scenes are loaded concurrently and returned in
// lexical file order.
func OpenDataset(fs fsutil.FileSystem, dataPath, split string, opts Options) (*Dataset, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	dir := filepath.Join(dataPath, split)
	paths, err := fs.Glob(filepath.Join(dir, "*.pcd"))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoScenes)
	}

	ds := &Dataset{Split: split, Scenes: make([]*Scene, len(paths))}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			s, err := loadScene(fs, path, opts)
			if err != nil {
				return err
			}
			ds.Scenes[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	monitoring.Logf("Loaded %d scenes from %s", len(ds.Scenes), dir)
	return ds, nil
}

func loadScene(fs fsutil.FileSystem, path string, opts Options) (*Scene, error) {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	name := filepath.Base(base)

	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	cloud, err := pointcloud.ReadPCD(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	labelPath := base + ".labels"
	data, err = fs.ReadFile(labelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", labelPath, err)
	}
	labels, err := pointcloud.ReadLabels(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", labelPath, err)
	}
	s, err := NewScene(name, cloud, labels, opts)
	if err != nil {
		return nil, err
	}
	monitoring.Logf("Loaded scene %s: %d points", name, s.Len())
	return s, nil
}
