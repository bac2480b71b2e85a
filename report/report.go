// Package report renders the run's human-readable artifacts: metric curves
// over the epoch history and qualitative 4-panel prediction figures. Nothing
// here is consumed programmatically.
package report

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"brainseg/datasets"
	"brainseg/trainer"
)

// LossCurves writes loss-vs-epoch for the training and validation phases to
// loss.png under outDir.
func LossCurves(history trainer.History, outDir string) error {
	p := plot.New()
	p.Title.Text = "Dice loss per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "loss"

	trainXY := make(plotter.XYs, 0, len(history))
	valXY := make(plotter.XYs, 0, len(history))
	for _, e := range history {
		trainXY = append(trainXY, plotter.XY{X: float64(e.Epoch), Y: e.TrainLoss})
		valXY = append(valXY, plotter.XY{X: float64(e.Epoch), Y: e.ValLoss})
	}

	tl, err := plotter.NewLine(trainXY)
	if err != nil {
		return err
	}
	tl.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	tl.Width = vg.Points(1.5)
	p.Add(tl)
	p.Legend.Add("train", tl)

	vl, err := plotter.NewLine(valXY)
	if err != nil {
		return err
	}
	vl.Color = color.RGBA{R: 200, G: 30, B: 30, A: 255}
	vl.Width = vg.Points(1.5)
	p.Add(vl)
	p.Legend.Add("validation", vl)

	p.Add(plotter.NewGrid())
	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "loss.png"))
}

// DiceCurve writes the validation Dice score per epoch to dice.png under
// outDir.
func DiceCurve(history trainer.History, outDir string) error {
	p := plot.New()
	p.Title.Text = "Validation Dice score per epoch"
	p.X.Label.Text = "epoch"
	p.Y.Label.Text = "dice"
	p.Y.Min = 0
	p.Y.Max = 1

	xy := make(plotter.XYs, 0, len(history))
	for _, e := range history {
		xy = append(xy, plotter.XY{X: float64(e.Epoch), Y: e.ValDice})
	}
	line, err := plotter.NewLine(xy)
	if err != nil {
		return err
	}
	line.Color = color.RGBA{R: 40, G: 120, B: 40, A: 255}
	line.Width = vg.Points(1.5)
	p.Add(line)
	p.Add(plotter.NewGrid())

	if err := ensureDir(outDir); err != nil {
		return err
	}
	return p.Save(8*vg.Inch, 6*vg.Inch, filepath.Join(outDir, "dice.png"))
}

// SamplePanels renders, for each of the first n validation samples, a
// horizontal 4-panel figure (input, ground truth, prediction, overlay) and
// writes it as sample_<i>.png under outDir.
func SamplePanels(ds datasets.Dataset, pred trainer.Predictor, n int, outDir string) error {
	if pred == nil {
		return fmt.Errorf("sample panels require a predictor")
	}
	if err := ensureDir(outDir); err != nil {
		return err
	}
	size := ds.ImageSize()
	if n > ds.Len() {
		n = ds.Len()
	}

	for i := 0; i < n; i++ {
		img, mask, err := ds.Example(i)
		if err != nil {
			return fmt.Errorf("failed to load sample %d: %w", i, err)
		}
		imgT := tensors.FromFlatDataAndDimensions(img, 1, size, size, 3)
		logits, err := pred.Predict(imgT)
		if err != nil {
			return fmt.Errorf("failed to predict sample %d: %w", i, err)
		}
		predMask := thresholdLogits(logits)

		input := rgbaFromFlat(img, size)
		panel := composePanels(
			input,
			grayFromMask(mask, size),
			grayFromMask(predMask, size),
			overlay(input, predMask, size),
		)
		outPath := filepath.Join(outDir, fmt.Sprintf("sample_%d.png", i))
		if err := writePNG(outPath, panel); err != nil {
			return err
		}
	}
	return nil
}

// thresholdLogits squashes a logit tensor to a flat binary mask buffer.
func thresholdLogits(logits *tensors.Tensor) []float32 {
	out := make([]float32, logits.Shape().Size())
	tensors.ConstFlatData[float32](logits, func(flat []float32) {
		for i, l := range flat {
			if 1.0/(1.0+math.Exp(-float64(l))) > 0.5 {
				out[i] = 1.0
			}
		}
	})
	return out
}

// rgbaFromFlat converts a [size][size][3] float buffer in [0,1] to an image.
func rgbaFromFlat(flat []float32, size int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			off := (y*size + x) * 3
			img.SetRGBA(x, y, color.RGBA{
				R: clamp8(flat[off]),
				G: clamp8(flat[off+1]),
				B: clamp8(flat[off+2]),
				A: 255,
			})
		}
	}
	return img
}

// grayFromMask converts a [size][size] binary buffer to a grayscale image.
func grayFromMask(flat []float32, size int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetGray(x, y, color.Gray{Y: clamp8(flat[y*size+x])})
		}
	}
	return img
}

// overlay blends the predicted mask in red over the input image.
func overlay(input *image.RGBA, mask []float32, size int) *image.RGBA {
	out := image.NewRGBA(input.Bounds())
	draw.Draw(out, out.Bounds(), input, image.Point{}, draw.Src)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if mask[y*size+x] < 0.5 {
				continue
			}
			c := out.RGBAAt(x, y)
			c.R = uint8(math.Min(255, float64(c.R)*0.55+255*0.45))
			c.G = uint8(float64(c.G) * 0.55)
			c.B = uint8(float64(c.B) * 0.55)
			out.SetRGBA(x, y, c)
		}
	}
	return out
}

// composePanels lays the given images out horizontally with a small gap.
func composePanels(panels ...image.Image) *image.RGBA {
	const gap = 4
	if len(panels) == 0 {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	w := panels[0].Bounds().Dx()
	h := panels[0].Bounds().Dy()
	out := image.NewRGBA(image.Rect(0, 0, len(panels)*w+(len(panels)-1)*gap, h))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	for i, p := range panels {
		x0 := i * (w + gap)
		draw.Draw(out, image.Rect(x0, 0, x0+w, h), p, p.Bounds().Min, draw.Src)
	}
	return out
}

func clamp8(v float32) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

func ensureDir(path string) error {
	// Attempt to create directory if it doesn't exist (silently succeed if present).
	if path == "" {
		return nil
	}
	return os.MkdirAll(path, 0755)
}
