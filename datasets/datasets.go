package datasets

import "github.com/gomlx/gomlx/pkg/core/tensors"

// This package loads paired MRI slice / tumor mask files and presents them as
// examples suitable for segmentation model training.
//
// The datasets use lazy loading - they store file paths and only decode the
// actual raster data when a batch is assembled, minimizing memory usage.
//
// Layout and intended usage:
//
// Index / SamplePair
//   - IndexDir scans a directory tree for raster files, separating mask files
//     (identified by the "_mask" filename marker) from the slice images.
//   - The pairing of image to mask is resolved once, at indexing time. Images
//     whose mask file cannot be found are excluded from the pair list with a
//     logged warning, so a naming-convention violation never surfaces later
//     as a mid-training failure.
//
// Segmentation
//   - Wraps a list of SamplePair plus a Transform and yields fixed-size
//     batches of (image, mask) tensors.
//   - Images are shaped [batch, size, size, 3] with values in [0,1]; masks
//     are shaped [batch, size, size, 1] with values exactly {0,1}.
//
// The datasets implement this interface in order to interact with GoMLX
// training loops and batching utilities.
type Dataset interface {
	Len() int
	ImageSize() int
	Example(i int) (image, mask []float32, err error)

	// To implement gomlx's train.Dataset interface
	Name() string
	Yield() (any, []*tensors.Tensor, []*tensors.Tensor, error)
	Reset()
}
