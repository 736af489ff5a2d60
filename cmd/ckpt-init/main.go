// Command ckpt-init writes a freshly initialised checkpoint. It is used to
// smoke-test the prediction pipeline before trained weights are available.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/banshee-data/pointsemantic/internal/labels"
	"github.com/banshee-data/pointsemantic/internal/pointnet"
	"github.com/banshee-data/pointsemantic/internal/predict"
	"github.com/banshee-data/pointsemantic/internal/version"
)

var (
	out         = flag.String("out", "model.ckpt", "Checkpoint file to write")
	fromDataset = flag.String("from-dataset", "semantic", "Dataset whose label space the head predicts")
	additionDim = flag.Int("addition-dim", 0, "Per-point feature columns after x, y, z (3 with colour, +3 with geometry)")
	modelName   = flag.String("model-name", "pointsemantic_folding", "Architecture name stored in the checkpoint")
	seed        = flag.Int64("seed", 0, "Parameter initialisation seed")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(version.String())
		return
	}

	ck, err := buildCheckpoint()
	if err != nil {
		log.Fatalf("Invalid arguments: %v", err)
	}
	if err := pointnet.SaveCheckpointFile(*out, ck); err != nil {
		log.Fatalf("Failed to write checkpoint: %v", err)
	}
	log.Printf("Wrote %s checkpoint (%d classes, addition dim %d) to %s", ck.Arch, ck.NumClasses, ck.AdditionDim, *out)
}

func buildCheckpoint() (*pointnet.Checkpoint, error) {
	model, err := predict.ParseModelName(*modelName)
	if err != nil {
		return nil, err
	}
	from, err := labels.ParseDataset(*fromDataset)
	if err != nil {
		return nil, err
	}
	cfg := pointnet.DefaultConfig(from.NumClasses(), *additionDim)
	cfg.Seed = *seed
	net, err := pointnet.New(cfg)
	if err != nil {
		return nil, err
	}
	return net.NewCheckpoint(model.String()), nil
}
