package report

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/tensors"

	"brainseg/datasets"
	"brainseg/trainer"
)

const testSize = 16

func sampleHistory() trainer.History {
	return trainer.History{
		{Epoch: 1, TrainLoss: 0.8, ValLoss: 0.85, ValDice: 0.2},
		{Epoch: 2, TrainLoss: 0.5, ValLoss: 0.6, ValDice: 0.5},
		{Epoch: 3, TrainLoss: 0.3, ValLoss: 0.45, ValDice: 0.7},
	}
}

func checkPNG(t *testing.T, path string) {
	t.Helper()
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected %s to exist: %v", path, err)
	}
	if info.Size() == 0 {
		t.Fatalf("%s is empty", path)
	}
}

// TestCurves verifies the metric plots are written as non-empty PNGs.
func TestCurves(t *testing.T) {
	tmp := t.TempDir()
	history := sampleHistory()
	if err := LossCurves(history, tmp); err != nil {
		t.Fatalf("LossCurves failed: %v", err)
	}
	if err := DiceCurve(history, tmp); err != nil {
		t.Fatalf("DiceCurve failed: %v", err)
	}
	checkPNG(t, filepath.Join(tmp, "loss.png"))
	checkPNG(t, filepath.Join(tmp, "dice.png"))
}

// stubPredictor returns confidently negative logits for any input batch.
type stubPredictor struct{}

func (stubPredictor) Predict(images *tensors.Tensor) (*tensors.Tensor, error) {
	dims := images.Shape().Dimensions
	flat := make([]float32, dims[0]*dims[1]*dims[2])
	for i := range flat {
		flat[i] = -10
	}
	return tensors.FromFlatDataAndDimensions(flat, dims[0], dims[1], dims[2], 1), nil
}

// writeFixturePair writes one solid image and an all-black mask.
func writeFixturePair(t *testing.T, dir, stem string) datasets.SamplePair {
	t.Helper()
	imgPath := filepath.Join(dir, stem+".png")
	maskPath := datasets.MaskPathFor(imgPath)
	writeSolidPNG(t, imgPath, color.RGBA{R: 120, G: 120, B: 120, A: 255})
	writeSolidPNG(t, maskPath, color.Black)
	return datasets.SamplePair{Image: imgPath, Mask: maskPath}
}

func writeSolidPNG(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, testSize, testSize))
	for y := 0; y < testSize; y++ {
		for x := 0; x < testSize; x++ {
			img.Set(x, y, c)
		}
	}
	if err := writePNG(path, img); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

// TestSamplePanels verifies a 4-panel figure is rendered per sample with the
// expected composed dimensions.
func TestSamplePanels(t *testing.T) {
	tmp := t.TempDir()
	pairs := []datasets.SamplePair{
		writeFixturePair(t, tmp, "a"),
		writeFixturePair(t, tmp, "b"),
	}
	ds, err := datasets.NewSegmentation("validation", pairs, datasets.NewTransform(testSize), 2, false, 1)
	if err != nil {
		t.Fatalf("NewSegmentation failed: %v", err)
	}

	// Panels consume the dataset through its interface, so any indexed
	// dataset implementation can feed them.
	var samples datasets.Dataset = ds

	outDir := filepath.Join(tmp, "out")
	if err := SamplePanels(samples, stubPredictor{}, 5, outDir); err != nil {
		t.Fatalf("SamplePanels failed: %v", err)
	}

	// Only 2 samples exist even though 5 were requested.
	for i := 0; i < 2; i++ {
		path := filepath.Join(outDir, fmt.Sprintf("sample_%d.png", i))
		checkPNG(t, path)
		f, err := os.Open(path)
		if err != nil {
			t.Fatalf("failed to open %s: %v", path, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			t.Fatalf("failed to decode %s: %v", path, err)
		}
		wantW := 4*testSize + 3*4
		if img.Bounds().Dx() != wantW || img.Bounds().Dy() != testSize {
			t.Errorf("panel %d is %dx%d, want %dx%d",
				i, img.Bounds().Dx(), img.Bounds().Dy(), wantW, testSize)
		}
	}
	if _, err := os.Stat(filepath.Join(outDir, "sample_2.png")); !os.IsNotExist(err) {
		t.Error("expected no third panel for a two-sample dataset")
	}
}
