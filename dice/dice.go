// Package dice implements the Dice region-overlap measure for binary
// segmentation, both as a differentiable training loss over logits and as a
// host-side evaluation score over yielded tensors.
//
// Dice = 2*|A∩B| / (|A|+|B|). The loss is 1 - Dice (smoothed); the score is
// the thresholded, per-image micro-average, in [0,1], higher is better.
package dice

import (
	"fmt"
	"math"

	"github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// Smooth is the additive smoothing constant applied to the numerator and
// denominator of the loss. It keeps the loss finite for empty masks and
// stabilizes gradients when the tumor region is a small fraction of pixels.
const Smooth = 1.0

// Loss computes the smoothed Dice loss from raw logits against a binary
// ground-truth mask and returns a single scalar per batch, lower is better.
// It satisfies the gomlx losses.LossFn contract: labels[0] is the mask batch
// shaped [b, h, w, 1] and predictions[0] the logit batch of the same shape.
//
// The sigmoid squashing is applied internally, so the model head must output
// raw logits, not probabilities.
func Loss(labels, predictions []*graph.Node) *graph.Node {
	truth := labels[0]
	logits := predictions[0]
	probs := graph.Sigmoid(logits)

	// Reduce over the spatial and channel axes, keeping the batch axis, so
	// the overlap is computed per image before averaging.
	intersection := graph.ReduceSum(graph.Mul(probs, truth), 1, 2, 3)
	totals := graph.Add(
		graph.ReduceSum(probs, 1, 2, 3),
		graph.ReduceSum(truth, 1, 2, 3))

	dice := graph.Div(
		graph.AddScalar(graph.MulScalar(intersection, 2), Smooth),
		graph.AddScalar(totals, Smooth))
	return graph.ReduceAllMean(graph.OneMinus(dice))
}

// Score computes the micro-averaged Dice score for a batch: logits are
// squashed to probabilities, thresholded at 0.5 into a binary prediction,
// per-image pixel counts are taken, and the per-image scores
// 2TP/(2TP+FP+FN) are averaged over the batch.
//
// An image whose prediction and ground truth are both empty (all background)
// scores 1.0: the prediction is exactly right, and no division fault can
// occur.
func Score(logits, truth *tensors.Tensor) (float64, error) {
	ldims := logits.Shape().Dimensions
	tdims := truth.Shape().Dimensions
	if len(ldims) == 0 || len(tdims) == 0 {
		return 0, fmt.Errorf("dice score requires batched tensors, got shapes %s and %s",
			logits.Shape(), truth.Shape())
	}
	if ldims[0] != tdims[0] {
		return 0, fmt.Errorf("logits batch %d does not match truth batch %d", ldims[0], tdims[0])
	}
	batch := ldims[0]
	if batch == 0 {
		return 0, fmt.Errorf("dice score of an empty batch is undefined")
	}
	if logits.Shape().Size() != truth.Shape().Size() {
		return 0, fmt.Errorf("logits size %d does not match truth size %d",
			logits.Shape().Size(), truth.Shape().Size())
	}
	perImage := logits.Shape().Size() / batch

	var total float64
	tensors.ConstFlatData[float32](logits, func(logitFlat []float32) {
		tensors.ConstFlatData[float32](truth, func(truthFlat []float32) {
			for i := 0; i < batch; i++ {
				off := i * perImage
				total += imageDice(logitFlat[off:off+perImage], truthFlat[off:off+perImage])
			}
		})
	})
	return total / float64(batch), nil
}

// imageDice scores a single image from its flat logit and truth buffers.
func imageDice(logits, truth []float32) float64 {
	var tp, fp, fn int
	for i, l := range logits {
		prob := 1.0 / (1.0 + math.Exp(-float64(l)))
		pred := prob > 0.5
		pos := truth[i] > 0.5
		switch {
		case pred && pos:
			tp++
		case pred && !pos:
			fp++
		case !pred && pos:
			fn++
		}
	}
	if tp == 0 && fp == 0 && fn == 0 {
		// Both prediction and ground truth are empty.
		return 1.0
	}
	return float64(2*tp) / float64(2*tp+fp+fn)
}
