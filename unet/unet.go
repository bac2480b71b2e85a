// Package unet builds the U-shaped encoder/decoder segmentation network: a
// contracting stack of convolution blocks with max-pool downsampling, a
// bottleneck, and an expanding stack of upsample + skip-concatenation blocks
// ending in a single-logit-per-pixel head at input resolution.
//
// The encoder lives under the "encoder" variable scope so its weights can be
// initialized from a pretrained checkpoint (see LoadPretrainedEncoder) while
// the decoder and head start from random initialization.
package unet

import (
	"fmt"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gomlx/pkg/ml/layers/activations"
	"github.com/gomlx/gomlx/pkg/ml/layers/batchnorm"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultBaseFilters = 64
	DefaultDepth       = 4
	DefaultEncoder     = "unet64"
	DefaultWeights     = "imagenet"
)

// Config holds the architecture hyperparameters and the pretrained-weights
// identifiers for the model.
type Config struct {
	// BaseFilters is the channel count of the first encoder block. It
	// doubles at every downsampling level.
	BaseFilters int

	// Depth is the number of downsampling (and matching upsampling) levels.
	// Input spatial resolution must be divisible by 2^Depth.
	Depth int

	// Encoder names the encoder architecture for the pretrained-weights
	// lookup. Default: "unet64".
	Encoder string

	// Weights names the pretrained weight set for the encoder, e.g.
	// "imagenet". Empty or "none" keeps random initialization.
	Weights string

	// CacheDir is where downloaded weight sets are cached.
	CacheDir string
}

// encoderArchs maps encoder architecture names to their parameters.
var encoderArchs = map[string]struct{ baseFilters, depth int }{
	"unet64": {64, 4},
	"unet32": {32, 4},
}

// FromEncoder returns the Config for a named encoder architecture with the
// given pretrained weight set.
func FromEncoder(name, weights, cacheDir string) (Config, error) {
	if name == "" {
		name = DefaultEncoder
	}
	arch, ok := encoderArchs[name]
	if !ok {
		return Config{}, fmt.Errorf("unknown encoder architecture %q", name)
	}
	return Config{
		BaseFilters: arch.baseFilters,
		Depth:       arch.depth,
		Encoder:     name,
		Weights:     weights,
		CacheDir:    cacheDir,
	}, nil
}

func (cfg Config) withDefaults() Config {
	if cfg.BaseFilters == 0 {
		cfg.BaseFilters = DefaultBaseFilters
	}
	if cfg.Depth == 0 {
		cfg.Depth = DefaultDepth
	}
	if cfg.Encoder == "" {
		cfg.Encoder = DefaultEncoder
	}
	return cfg
}

// convBlock applies two convolution + batch-norm + ReLU stages, keeping
// spatial resolution.
func convBlock(ctx *context.Context, x *graph.Node, filters int) *graph.Node {
	for i := 0; i < 2; i++ {
		stage := ctx.Inf("conv_%d", i)
		x = layers.Convolution(stage, x).Filters(filters).KernelSize(3).PadSame().Done()
		x = batchnorm.New(stage, x, -1).Done()
		x = activations.Relu(x)
	}
	return x
}

// Model builds the forward graph mapping an image batch [b, size, size, 3]
// to a logit batch [b, size, size, 1]. It satisfies the gomlx train.ModelFn
// contract: the forward pass is deterministic for fixed parameters and
// differentiable end to end.
func (cfg Config) Model(ctx *context.Context, spec any, inputs []*graph.Node) []*graph.Node {
	cfg = cfg.withDefaults()
	x := inputs[0]

	// Contracting half: keep the pre-pool activation of each level to feed
	// the matching decoder level.
	enc := ctx.In("encoder")
	skips := make([]*graph.Node, 0, cfg.Depth)
	filters := cfg.BaseFilters
	for level := 0; level < cfg.Depth; level++ {
		x = convBlock(enc.Inf("block_%d", level), x, filters)
		skips = append(skips, x)
		x = graph.MaxPool(x).Window(2).Done()
		filters *= 2
	}
	x = convBlock(enc.In("bottleneck"), x, filters)

	// Expanding half.
	dec := ctx.In("decoder")
	for level := cfg.Depth - 1; level >= 0; level-- {
		filters /= 2
		dims := x.Shape().Dimensions
		x = graph.Interpolate(x, graph.NoInterpolation, 2*dims[1], 2*dims[2], graph.NoInterpolation).Done()
		x = graph.Concatenate([]*graph.Node{skips[level], x}, -1)
		x = convBlock(dec.Inf("block_%d", level), x, filters)
	}

	logits := layers.Convolution(ctx.In("head"), x).Filters(1).KernelSize(1).Done()
	return []*graph.Node{logits}
}
