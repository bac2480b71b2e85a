// Command train runs the full segmentation experiment: index the paired
// image/mask files, split them, train the U-Net under the Dice loss, and
// render the metric curves and qualitative sample panels.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/backends"
	_ "github.com/gomlx/gomlx/backends/simplego"
	_ "github.com/gomlx/gomlx/backends/xla"
	"github.com/gomlx/gomlx/pkg/ml/context"
	mldatasets "github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"

	"brainseg/datasets"
	"brainseg/dice"
	"brainseg/report"
	"brainseg/trainer"
	"brainseg/unet"
)

func main() {
	cfg, err := parseConfig()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

// parseConfig builds the run configuration from defaults, an optional JSON
// config file, and command-line flags, in that order of precedence (flags
// explicitly set on the command line win).
func parseConfig() (trainer.RunConfig, error) {
	cfg := trainer.DefaultRunConfig()

	configPath := flag.String("config", "", "optional JSON run-config file; explicit flags override it")
	backendCfg := flag.String("backend", cfg.Backend, `gomlx backend config, e.g. "xla:cpu" or "go" (empty selects the default)`)
	dataDir := flag.String("data", cfg.DataDir, "root directory of paired image/mask files")
	outDir := flag.String("out", cfg.OutDir, "output directory for plots and sample panels")
	imageSize := flag.Int("size", cfg.ImageSize, "square resolution samples are resized to")
	batchSize := flag.Int("batch", cfg.BatchSize, "batch size for training and validation")
	epochs := flag.Int("epochs", cfg.Epochs, "number of epochs to train")
	lr := flag.Float64("lr", cfg.LearningRate, "Adam learning rate")
	valFraction := flag.Float64("val-fraction", cfg.ValFraction, "fraction of pairs held out for validation")
	seed := flag.Int64("seed", cfg.Seed, "seed for the split and per-epoch shuffles")
	encoder := flag.String("encoder", cfg.Encoder, "encoder architecture name")
	weights := flag.String("weights", cfg.Weights, `pretrained weight set for the encoder ("none" for random init)`)
	cacheDir := flag.String("cache", cfg.CacheDir, "cache directory for downloaded weight sets")
	panels := flag.Int("panels", cfg.PanelSamples, "number of validation samples rendered as 4-panel figures")
	parallel := flag.Bool("parallel", cfg.Parallel, "prefetch training batches with a worker pool")
	flag.Parse()

	if *configPath != "" {
		raw, err := os.ReadFile(*configPath)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file %s: %w", *configPath, err)
		}
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file %s: %w", *configPath, err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backendCfg
		case "data":
			cfg.DataDir = *dataDir
		case "out":
			cfg.OutDir = *outDir
		case "size":
			cfg.ImageSize = *imageSize
		case "batch":
			cfg.BatchSize = *batchSize
		case "epochs":
			cfg.Epochs = *epochs
		case "lr":
			cfg.LearningRate = *lr
		case "val-fraction":
			cfg.ValFraction = *valFraction
		case "seed":
			cfg.Seed = *seed
		case "encoder":
			cfg.Encoder = *encoder
		case "weights":
			cfg.Weights = *weights
		case "cache":
			cfg.CacheDir = *cacheDir
		case "panels":
			cfg.PanelSamples = *panels
		case "parallel":
			cfg.Parallel = *parallel
		}
	})

	return cfg, nil
}

// newBackend creates the execution backend. The U-Net's convolution
// backward pass and batch-norm training ops need the XLA backend; simplego
// can only carry inference, so backend selection is left to the standard
// gomlx machinery (config string or the GOMLX_BACKEND environment variable)
// instead of hardcoding one.
func newBackend(config string) (backends.Backend, error) {
	if config != "" {
		return backends.NewWithConfig(config)
	}
	return backends.New()
}

func run(cfg trainer.RunConfig) error {
	backend, err := newBackend(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to create backend: %w", err)
	}
	log.Printf("using backend %s", backend.Name())

	ctx := context.New()
	ctx.RngStateFromSeed(cfg.Seed)

	ix, err := datasets.IndexDir(cfg.DataDir)
	if err != nil {
		return err
	}
	pairs := ix.Pairs()
	if len(pairs) == 0 {
		return fmt.Errorf("no image/mask pairs found under %s", cfg.DataDir)
	}

	trainPairs, valPairs, err := datasets.Split(pairs, cfg.ValFraction, cfg.Seed)
	if err != nil {
		return err
	}
	log.Printf("split: %d train / %d validation pairs", len(trainPairs), len(valPairs))

	transform := datasets.NewTransform(cfg.ImageSize)
	trainDS, err := datasets.NewSegmentation("train", trainPairs, transform, cfg.BatchSize, true, cfg.Seed)
	if err != nil {
		return err
	}
	valDS, err := datasets.NewSegmentation("validation", valPairs, transform, cfg.BatchSize, false, cfg.Seed)
	if err != nil {
		return err
	}
	log.Printf("batch memory: %s per full batch", humanize.Bytes(trainDS.BatchBytes()))

	modelCfg, err := unet.FromEncoder(cfg.Encoder, cfg.Weights, cfg.CacheDir)
	if err != nil {
		return err
	}
	if err := unet.LoadPretrainedEncoder(ctx, modelCfg); err != nil {
		return err
	}

	opt := optimizers.Adam().LearningRate(cfg.LearningRate).Done()
	gomlxTrainer := train.NewTrainer(backend, ctx, modelCfg.Model, dice.Loss, opt, nil, nil)

	predictor, err := unet.NewPredictor(backend, ctx, modelCfg)
	if err != nil {
		return err
	}

	var trainData train.Dataset = trainDS
	if cfg.Parallel {
		trainData = mldatasets.Parallel(trainDS)
	}

	loop, err := trainer.NewLoop(trainer.NewTrainerRunner(gomlxTrainer), predictor, trainData, valDS, cfg.Epochs)
	if err != nil {
		return err
	}
	loop.Progress = true
	history, err := loop.Run()
	if err != nil {
		return err
	}

	if err := report.LossCurves(history, cfg.OutDir); err != nil {
		return fmt.Errorf("failed to render loss curves: %w", err)
	}
	if err := report.DiceCurve(history, cfg.OutDir); err != nil {
		return fmt.Errorf("failed to render dice curve: %w", err)
	}
	if err := report.SamplePanels(valDS, predictor, cfg.PanelSamples, cfg.OutDir); err != nil {
		return fmt.Errorf("failed to render sample panels: %w", err)
	}
	log.Printf("plots and sample panels written to %s", cfg.OutDir)
	return nil
}
