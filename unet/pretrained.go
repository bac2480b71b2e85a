package unet

import (
	"fmt"
	"log"
	"path/filepath"

	"github.com/gomlx/gomlx/examples/downloader"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/pkg/errors"
)

const weightsBaseURL = "https://storage.googleapis.com/brainseg-weights"

// weightSet describes one downloadable pretrained encoder checkpoint.
type weightSet struct {
	url     string
	archive string // tar file name under the cache dir
	dir     string // unpacked checkpoint directory name
}

// pretrainedWeights maps "<encoder>/<weights>" identifiers to their weight
// sets. The checkpoints hold only encoder-scope variables, saved from the
// same architecture after large-scale natural-image classification
// pretraining.
var pretrainedWeights = map[string]weightSet{
	"unet64/imagenet": {
		url:     weightsBaseURL + "/unet64-imagenet.tar.gz",
		archive: "unet64-imagenet.tar.gz",
		dir:     "unet64-imagenet",
	},
	"unet32/imagenet": {
		url:     weightsBaseURL + "/unet32-imagenet.tar.gz",
		archive: "unet32-imagenet.tar.gz",
		dir:     "unet32-imagenet",
	},
}

// PretrainedWeightSets lists the known "<encoder>/<weights>" identifiers.
func PretrainedWeightSets() []string {
	keys := make([]string, 0, len(pretrainedWeights))
	for k := range pretrainedWeights {
		keys = append(keys, k)
	}
	return keys
}

// LoadPretrainedEncoder resolves the (encoder, weight-set) identifiers of
// cfg, downloads and unpacks the checkpoint into cfg.CacheDir if it is not
// cached yet, and loads its variables into ctx. Only encoder-scope variables
// are present in the checkpoints, so decoder and head initialization is left
// untouched.
//
// With Weights empty or "none" this is a no-op and the whole network keeps
// its random initialization.
func LoadPretrainedEncoder(ctx *context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	if cfg.Weights == "" || cfg.Weights == "none" {
		log.Printf("encoder %s: random initialization (no pretrained weights requested)", cfg.Encoder)
		return nil
	}

	key := cfg.Encoder + "/" + cfg.Weights
	ws, ok := pretrainedWeights[key]
	if !ok {
		return fmt.Errorf("no pretrained weight set %q for encoder %q (known: %v)",
			cfg.Weights, cfg.Encoder, PretrainedWeightSets())
	}

	checkpointDir := filepath.Join(cfg.CacheDir, ws.dir)
	if err := downloader.DownloadAndUntarIfMissing(ws.url, cfg.CacheDir, ws.archive, checkpointDir, ""); err != nil {
		return errors.WithMessagef(err, "failed to fetch pretrained weights %s", key)
	}

	_, err := checkpoints.Build(ctx).Dir(checkpointDir).Done()
	if err != nil {
		return errors.WithMessagef(err, "failed to load pretrained weights %s from %s", key, checkpointDir)
	}
	log.Printf("encoder %s: loaded %s weights from %s", cfg.Encoder, cfg.Weights, checkpointDir)
	return nil
}
