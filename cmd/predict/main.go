package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/banshee-data/pointsemantic/internal/config"
	"github.com/banshee-data/pointsemantic/internal/export"
	"github.com/banshee-data/pointsemantic/internal/fsutil"
	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/metrics"
	"github.com/banshee-data/pointsemantic/internal/pointnet"
	"github.com/banshee-data/pointsemantic/internal/predict"
	"github.com/banshee-data/pointsemantic/internal/scene"
	"github.com/banshee-data/pointsemantic/internal/storage/sqlite"
	"github.com/banshee-data/pointsemantic/internal/version"
)

var (
	gpuID       = flag.Int("gpu-id", 0, "GPU index (accepted for compatibility; inference runs on the CPU)")
	numSamples  = flag.Int("num-samples", 500, "Samples drawn per scene")
	resumeModel = flag.String("resume-model", "", "Checkpoint to load (required; cmd/ckpt-init writes one for smoke runs)")
	configFile  = flag.String("config-file", "semantic.json", "Training config JSON")
	split       = flag.String("set", "validation", "Dataset split to predict")
	numPoint    = flag.Int("num-point", 8192, "Points per sample")
	modelName   = flag.String("model-name", "", "Model name: pointsemantic_folding or PBC_folding")
	batchSize   = flag.Int("batch-size", 16, "Samples per forward pass")
	fromDataset = flag.String("from-dataset", "semantic", "Dataset the model was trained on: semantic or npm")
	toDataset   = flag.String("to-dataset", "semantic", "Dataset to predict: semantic or npm")
	seed        = flag.Int64("seed", 0, "Sampling seed")
	outputRoot  = flag.String("output-root", "result", "Root directory for exported files")
	dbPath      = flag.String("db", "", "Optional SQLite database recording run metrics")
	workers     = flag.Int("workers", 0, "Concurrent samples per forward pass (0 uses GOMAXPROCS)")
	countAbsent = flag.Bool("count-absent", false, "Average mean IoU over absent classes as zero")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

var errMissingFlag = errors.New("missing required flag")

// runOptions is the validated form of the command line.
type runOptions struct {
	model    predict.ModelName
	from, to labels.Dataset
	policy   metrics.AbsentPolicy
}

func parseRunOptions() (runOptions, error) {
	var opts runOptions
	var err error
	if *modelName == "" {
		return opts, fmt.Errorf("%w: -model-name is required", predict.ErrUnknownModel)
	}
	if opts.model, err = predict.ParseModelName(*modelName); err != nil {
		return opts, err
	}
	if *resumeModel == "" {
		return opts, fmt.Errorf("%w: -resume-model", errMissingFlag)
	}
	if opts.from, err = labels.ParseDataset(*fromDataset); err != nil {
		return opts, fmt.Errorf("-from-dataset: %w", err)
	}
	if opts.to, err = labels.ParseDataset(*toDataset); err != nil {
		return opts, fmt.Errorf("-to-dataset: %w", err)
	}
	if *countAbsent {
		opts.policy = metrics.CountAbsentAsZero
	}
	return opts, nil
}

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	opts, err := parseRunOptions()
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		log.Fatalf("Prediction failed: %v", err)
	}
}

func run(ctx context.Context, opts runOptions) error {
	cfg, err := config.LoadPredictConfig(*configFile)
	if err != nil {
		return err
	}
	log.Printf("%s, CPU inference with %d workers (gpu-id %d ignored)", version.String(), effectiveWorkers(), *gpuID)

	sceneOpts := scene.Options{
		BoxSizeX:       cfg.GetBoxSizeX(),
		BoxSizeY:       cfg.GetBoxSizeY(),
		UseColor:       cfg.GetUseColor(),
		UseGeometry:    cfg.GetUseGeometry(),
		GeometryRadius: cfg.GetGeometryRadius(),
		NumClasses:     opts.to.NumClasses(),
		Seed:           *seed,
	}

	netCfg := pointnet.DefaultConfig(opts.from.NumClasses(), sceneOpts.AdditionDim())
	netCfg.Seed = *seed
	netCfg.Workers = *workers
	net, err := pointnet.New(netCfg)
	if err != nil {
		return err
	}
	ck, err := pointnet.LoadCheckpointFile(*resumeModel)
	if err != nil {
		return err
	}
	if err := ck.CheckArch(opts.model.String()); err != nil {
		return fmt.Errorf("load %s: %w", *resumeModel, err)
	}
	if err := net.LoadCheckpoint(ck); err != nil {
		return fmt.Errorf("load %s: %w", *resumeModel, err)
	}
	log.Printf("Resuming from %s", *resumeModel)
	net.Eval()

	fs := fsutil.OSFileSystem{}
	ds, err := scene.OpenDataset(fs, cfg.GetDataPath(), *split, sceneOpts)
	if err != nil {
		return err
	}

	dir := export.OutputDir(*outputRoot, opts.model.String(), opts.from.String(), opts.to.String(), *split)
	out, err := export.NewWriter(fs, dir)
	if err != nil {
		return err
	}

	driver, err := predict.New(predict.Config{
		Model:       opts.model,
		From:        opts.from,
		To:          opts.to,
		Split:       *split,
		NumSamples:  *numSamples,
		NumPoint:    *numPoint,
		BatchSize:   *batchSize,
		UseColor:    sceneOpts.UseColor,
		UseGeometry: sceneOpts.UseGeometry,
		Policy:      opts.policy,
	}, net, out)
	if err != nil {
		return err
	}

	files := make([]predict.FileData, len(ds.Scenes))
	for i, s := range ds.Scenes {
		files[i] = s
	}
	summary, err := driver.Run(ctx, files)
	if err != nil {
		return err
	}
	if err := driver.PrintMetrics(os.Stdout); err != nil {
		return err
	}
	log.Printf("Batch latency %v ± %v over %d batches", summary.BatchLatencyMean, summary.BatchLatencyStd, summary.Batches)

	if *dbPath != "" {
		return recordRun(*dbPath, summary)
	}
	return nil
}

func recordRun(path string, s *predict.Summary) error {
	store, err := sqlite.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.MigrateUp(); err != nil {
		return err
	}

	run, classes := runRecord(s)
	if err := store.InsertRun(run, classes); err != nil {
		return err
	}
	log.Printf("Recorded run %s in %s", run.RunID, path)
	return nil
}

// runRecord flattens a summary into its database rows.
func runRecord(s *predict.Summary) (*sqlite.Run, []sqlite.ClassMetric) {
	run := &sqlite.Run{
		Model:              s.Model.String(),
		FromDataset:        s.From.String(),
		ToDataset:          s.To.String(),
		Split:              s.Split,
		NumFiles:           len(s.Files),
		NumPoints:          s.Points,
		CommonAccuracy:     s.Common.OverallAccuracy,
		CommonMeanIoU:      s.Common.MeanIoU,
		BatchLatencyMeanNs: s.BatchLatencyMean.Nanoseconds(),
	}
	classes := sqlite.ClassMetricsFromReport(labels.CommonSpace.String(), labels.CommonClassNames(), s.Common)
	if s.Native != nil {
		acc, miou := s.Native.OverallAccuracy, s.Native.MeanIoU
		run.NativeAccuracy = &acc
		run.NativeMeanIoU = &miou
		space := labels.NativeSpace(s.From)
		classes = append(classes, sqlite.ClassMetricsFromReport(space.String(), s.From.ClassNames(), *s.Native)...)
	}
	return run, classes
}

func effectiveWorkers() int {
	if *workers > 0 {
		return *workers
	}
	return runtime.GOMAXPROCS(0)
}
