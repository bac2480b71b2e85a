package trainer

// RunConfig carries everything a run needs for determinism and placement:
// the seed, the data layout, and the training hyperparameters. It is passed
// explicitly to every component instead of living in process-global state.
type RunConfig struct {
	// Backend is the gomlx backend config string, e.g. "xla:cpu" or "go".
	// Empty lets gomlx pick its default (GOMLX_BACKEND still applies).
	Backend string `json:"backend"`

	// DataDir is the root directory holding the paired image/mask files.
	DataDir string `json:"data_dir"`

	// OutDir receives the rendered plots and sample panels.
	OutDir string `json:"out_dir"`

	// ImageSize is the square resolution samples are resized to.
	ImageSize int `json:"image_size"`

	// BatchSize for both the training and validation loaders.
	BatchSize int `json:"batch_size"`

	// Epochs to train for.
	Epochs int `json:"epochs"`

	// LearningRate for the Adam optimizer.
	LearningRate float64 `json:"learning_rate"`

	// ValFraction is the share of pairs held out for validation.
	ValFraction float64 `json:"val_fraction"`

	// Seed drives the split and the per-epoch shuffles.
	Seed int64 `json:"seed"`

	// Encoder and Weights identify the pretrained encoder weight set.
	// Weights "none" keeps random initialization.
	Encoder string `json:"encoder"`
	Weights string `json:"weights"`

	// CacheDir is where downloaded weight sets are kept.
	CacheDir string `json:"cache_dir"`

	// PanelSamples is the number of validation samples rendered as 4-panel
	// figures after training.
	PanelSamples int `json:"panel_samples"`

	// Parallel enables prefetching of training batches by a worker pool.
	Parallel bool `json:"parallel"`
}

// DefaultRunConfig returns the run configuration with all defaults applied.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		DataDir:      "data",
		OutDir:       "output",
		ImageSize:    256,
		BatchSize:    16,
		Epochs:       1,
		LearningRate: 3e-4,
		ValFraction:  0.2,
		Seed:         42,
		Encoder:      "unet64",
		Weights:      "none",
		CacheDir:     "cache",
		PanelSamples: 6,
		Parallel:     true,
	}
}
