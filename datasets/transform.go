package datasets

import (
	"fmt"
	"image"
	"os"

	// Register the raster codecs the indexer accepts.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// DefaultImageSize is the square resolution samples are resized to when a
// Transform is created with Size zero.
const DefaultImageSize = 256

// Transform deterministically converts raster files to fixed-size normalized
// float32 buffers. The same resize kernel (Catmull-Rom, appropriate for
// continuous images) is applied to images and masks; masks are thresholded
// afterwards to undo any intermediate values the interpolation introduced.
type Transform struct {
	// Size is the square output resolution (pixels per side).
	Size int
}

// NewTransform returns a Transform with defaults applied.
func NewTransform(size int) Transform {
	if size <= 0 {
		size = DefaultImageSize
	}
	return Transform{Size: size}
}

// decode opens and decodes the raster file at path.
func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return img, nil
}

// resize scales src to the configured square resolution.
func (t Transform) resize(src image.Image) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, t.Size, t.Size))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Bounds(), draw.Src, nil)
	return dst
}

// Image loads the slice image at path and returns it as a flat float32
// buffer in row-major [Size][Size][3] layout with values in [0,1].
func (t Transform) Image(path string) ([]float32, error) {
	src, err := decode(path)
	if err != nil {
		return nil, err
	}
	dst := t.resize(src)

	out := make([]float32, 0, t.Size*t.Size*3)
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			out = append(out, float32(r>>8)/255.0, float32(g>>8)/255.0, float32(b>>8)/255.0)
		}
	}
	return out, nil
}

// Mask loads the mask at path and returns it as a flat float32 buffer in
// row-major [Size][Size][1] layout, binarized to exactly {0,1}.
func (t Transform) Mask(path string) ([]float32, error) {
	src, err := decode(path)
	if err != nil {
		return nil, err
	}
	dst := t.resize(src)

	out := make([]float32, 0, t.Size*t.Size)
	for y := 0; y < t.Size; y++ {
		for x := 0; x < t.Size; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			// Standard grayscale formula, normalized to [0,1].
			gray := (0.299*float32(r>>8) + 0.587*float32(g>>8) + 0.114*float32(b>>8)) / 255.0
			out = append(out, gray)
		}
	}
	Binarize(out)
	return out, nil
}

// Binarize thresholds vals in place at 0.5 so every element is exactly 0 or
// 1. The operation is idempotent: applying it to an already-binary buffer
// leaves it unchanged.
func Binarize(vals []float32) {
	for i, v := range vals {
		if v > 0.5 {
			vals[i] = 1.0
		} else {
			vals[i] = 0.0
		}
	}
}
