package datasets

import (
	"fmt"
	"io"
	"math/rand"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
)

// DefaultBatchSize is used when a Segmentation dataset is created with a
// batch size of zero.
const DefaultBatchSize = 16

var (
	_ train.Dataset = (*Segmentation)(nil)
	_ Dataset       = (*Segmentation)(nil)
)

// Segmentation presents a list of validated SamplePairs as batches of
// (image, mask) tensors via the gomlx train.Dataset interface.
//
// A training dataset (shuffle=true) visits every pair exactly once per
// epoch in a freshly randomized order after each Reset; a validation dataset
// preserves the original pair order. The final batch of an epoch may be
// partial.
type Segmentation struct {
	name      string
	pairs     []SamplePair
	transform Transform
	batchSize int
	shuffle   bool

	rng   *rand.Rand
	order []int
	next  int
}

// NewSegmentation creates a dataset over pairs. A shuffling dataset draws
// its epoch orders from a generator seeded with seed, so two datasets built
// with the same pairs and seed produce identical epochs.
func NewSegmentation(name string, pairs []SamplePair, transform Transform, batchSize int, shuffle bool, seed int64) (*Segmentation, error) {
	if batchSize < 0 {
		return nil, fmt.Errorf("batch size %d is negative", batchSize)
	}
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	ds := &Segmentation{
		name:      name,
		pairs:     pairs,
		transform: transform,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		order:     make([]int, len(pairs)),
	}
	for i := range ds.order {
		ds.order[i] = i
	}
	ds.Reset()
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Segmentation) Name() string { return ds.name }

// Len returns the number of sample pairs in the dataset.
func (ds *Segmentation) Len() int { return len(ds.pairs) }

// BatchSize returns the configured batch size.
func (ds *Segmentation) BatchSize() int { return ds.batchSize }

// ImageSize returns the square resolution samples are transformed to.
func (ds *Segmentation) ImageSize() int { return ds.transform.Size }

// NumBatches returns the number of batches one epoch yields, counting a
// final partial batch.
func (ds *Segmentation) NumBatches() int {
	if len(ds.pairs) == 0 {
		return 0
	}
	return (len(ds.pairs) + ds.batchSize - 1) / ds.batchSize
}

// Pair returns the i-th sample pair in original (unshuffled) order.
func (ds *Segmentation) Pair(i int) SamplePair { return ds.pairs[i] }

// Example loads and transforms the i-th pair (original order), returning the
// flat image and mask buffers.
func (ds *Segmentation) Example(i int) (image, mask []float32, err error) {
	if i < 0 || i >= len(ds.pairs) {
		return nil, nil, fmt.Errorf("index %d out of range [0, %d)", i, len(ds.pairs))
	}
	p := ds.pairs[i]
	image, err = ds.transform.Image(p.Image)
	if err != nil {
		return nil, nil, err
	}
	mask, err = ds.transform.Mask(p.Mask)
	if err != nil {
		return nil, nil, err
	}
	return image, mask, nil
}

// Yield implements train.Dataset. It returns:
//
//   - spec: the dataset itself.
//   - inputs: one tensor, the image batch shaped [b, size, size, 3] with
//     values in [0,1].
//   - labels: one tensor, the mask batch shaped [b, size, size, 1] with
//     values in {0,1}.
//
// It returns io.EOF once every pair has been visited in the current epoch.
func (ds *Segmentation) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	if ds.next >= len(ds.order) {
		return nil, nil, nil, io.EOF
	}
	end := ds.next + ds.batchSize
	if end > len(ds.order) {
		end = len(ds.order)
	}
	batch := ds.order[ds.next:end]
	ds.next = end

	size := ds.transform.Size
	imgFlat := make([]float32, 0, len(batch)*size*size*3)
	maskFlat := make([]float32, 0, len(batch)*size*size)
	for _, idx := range batch {
		img, mask, err := ds.Example(idx)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load example %d: %w", idx, err)
		}
		imgFlat = append(imgFlat, img...)
		maskFlat = append(maskFlat, mask...)
	}

	imgT := tensors.FromFlatDataAndDimensions(imgFlat, len(batch), size, size, 3)
	maskT := tensors.FromFlatDataAndDimensions(maskFlat, len(batch), size, size, 1)
	return ds, []*tensors.Tensor{imgT}, []*tensors.Tensor{maskT}, nil
}

// IsOwnershipTransferred tells the training loop it may finalize the yielded
// tensors: each batch is freshly allocated.
func (ds *Segmentation) IsOwnershipTransferred() bool { return true }

// Reset implements train.Dataset. It rewinds the epoch and, for a training
// dataset, draws a new sample order.
func (ds *Segmentation) Reset() {
	ds.next = 0
	if ds.shuffle {
		ds.rng.Shuffle(len(ds.order), func(i, j int) {
			ds.order[i], ds.order[j] = ds.order[j], ds.order[i]
		})
	}
}

// BatchBytes returns the approximate memory footprint of one full batch of
// image and mask tensors, for startup reporting.
func (ds *Segmentation) BatchBytes() uint64 {
	size := ds.transform.Size
	perExample := uint64(size*size*3+size*size) * 4
	return perExample * uint64(ds.batchSize)
}
