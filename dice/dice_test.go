package dice

import (
	"math"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// logitFor returns a confident logit for the given binary value: +10 maps
// through sigmoid to ~1, -10 to ~0.
func logitFor(v float32) float32 {
	if v > 0.5 {
		return 10
	}
	return -10
}

// maskTensors builds logit and truth tensors shaped [b, h, w, 1] from
// per-image binary masks, with logits predicting exactly pred.
func maskTensors(t *testing.T, pred, truth [][]float32, h, w int) (*tensors.Tensor, *tensors.Tensor) {
	t.Helper()
	b := len(pred)
	logitFlat := make([]float32, 0, b*h*w)
	truthFlat := make([]float32, 0, b*h*w)
	for i := range pred {
		for _, v := range pred[i] {
			logitFlat = append(logitFlat, logitFor(v))
		}
		truthFlat = append(truthFlat, truth[i]...)
	}
	return tensors.FromFlatDataAndDimensions(logitFlat, b, h, w, 1),
		tensors.FromFlatDataAndDimensions(truthFlat, b, h, w, 1)
}

func mask(h, w int, fill func(x, y int) float32) []float32 {
	out := make([]float32, h*w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			out[y*w+x] = fill(x, y)
		}
	}
	return out
}

// TestScore_PerfectMatch verifies Dice is 1.0 when prediction equals ground
// truth, including the all-positive and all-negative degenerate cases.
func TestScore_PerfectMatch(t *testing.T) {
	const h, w = 4, 4
	cases := map[string][]float32{
		"mixed":        mask(h, w, func(x, y int) float32 { return float32(x % 2) }),
		"all-positive": mask(h, w, func(x, y int) float32 { return 1 }),
		"all-negative": mask(h, w, func(x, y int) float32 { return 0 }),
	}
	for name, m := range cases {
		logits, truth := maskTensors(t, [][]float32{m}, [][]float32{m}, h, w)
		score, err := Score(logits, truth)
		if err != nil {
			t.Fatalf("%s: Score failed: %v", name, err)
		}
		if score != 1.0 {
			t.Errorf("%s: score %f, want 1.0", name, score)
		}
	}
}

// TestScore_Disjoint verifies fully disjoint non-empty masks score 0.0.
func TestScore_Disjoint(t *testing.T) {
	const h, w = 4, 4
	left := mask(h, w, func(x, y int) float32 {
		if x < 2 {
			return 1
		}
		return 0
	})
	right := mask(h, w, func(x, y int) float32 {
		if x >= 2 {
			return 1
		}
		return 0
	})
	logits, truth := maskTensors(t, [][]float32{left}, [][]float32{right}, h, w)
	score, err := Score(logits, truth)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 0.0 {
		t.Errorf("disjoint score %f, want 0.0", score)
	}
}

// TestScore_BothEmpty verifies a fully black prediction against a fully
// black ground truth raises no division fault and scores 1.0.
func TestScore_BothEmpty(t *testing.T) {
	const h, w = 8, 8
	empty := mask(h, w, func(x, y int) float32 { return 0 })
	logits, truth := maskTensors(t, [][]float32{empty}, [][]float32{empty}, h, w)
	score, err := Score(logits, truth)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if score != 1.0 {
		t.Errorf("both-empty score %f, want 1.0 by convention", score)
	}
}

// TestScore_BatchMean verifies per-image scores are averaged image-wise.
func TestScore_BatchMean(t *testing.T) {
	const h, w = 4, 4
	full := mask(h, w, func(x, y int) float32 { return 1 })
	empty := mask(h, w, func(x, y int) float32 { return 0 })
	// Image 0: perfect (1.0). Image 1: predicted full against empty truth:
	// 2*0/(2*0+16+0) = 0.
	logits, truth := maskTensors(t, [][]float32{full, full}, [][]float32{full, empty}, h, w)
	score, err := Score(logits, truth)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("batch score %f, want 0.5", score)
	}
}

// TestScore_HalfOverlap verifies the 2TP/(2TP+FP+FN) calculation on a
// partial overlap.
func TestScore_HalfOverlap(t *testing.T) {
	const h, w = 2, 2
	// Prediction covers the top row, truth covers the left column:
	// TP=1, FP=1, FN=1 -> dice = 2/4 = 0.5.
	pred := []float32{1, 1, 0, 0}
	truth := []float32{1, 0, 1, 0}
	logits, truthT := maskTensors(t, [][]float32{pred}, [][]float32{truth}, h, w)
	score, err := Score(logits, truthT)
	if err != nil {
		t.Fatalf("Score failed: %v", err)
	}
	if math.Abs(score-0.5) > 1e-9 {
		t.Errorf("half-overlap score %f, want 0.5", score)
	}
}

// TestScore_ShapeMismatch verifies mismatched batches are rejected.
func TestScore_ShapeMismatch(t *testing.T) {
	const h, w = 2, 2
	m := mask(h, w, func(x, y int) float32 { return 1 })
	logits, _ := maskTensors(t, [][]float32{m, m}, [][]float32{m, m}, h, w)
	_, truth := maskTensors(t, [][]float32{m}, [][]float32{m}, h, w)
	if _, err := Score(logits, truth); err == nil {
		t.Fatal("expected an error for mismatched batch sizes")
	}
}
