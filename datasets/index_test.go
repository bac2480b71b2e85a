package datasets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

// writePNGFile writes a solid-color PNG of the given size at path.
func writePNGFile(t *testing.T, path string, w, h int, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode %s: %v", path, err)
	}
}

// writePairFiles writes an image and its mask under dir with the naming
// convention the indexer expects, and returns the image path.
func writePairFiles(t *testing.T, dir, stem string, w, h int, imgColor color.Color, maskWhite bool) string {
	t.Helper()
	imgPath := filepath.Join(dir, stem+".png")
	maskPath := filepath.Join(dir, stem+"_mask.png")
	writePNGFile(t, imgPath, w, h, imgColor)
	maskColor := color.Color(color.Black)
	if maskWhite {
		maskColor = color.White
	}
	writePNGFile(t, maskPath, w, h, maskColor)
	return imgPath
}

// TestIndexDir_PairsAndExclusions verifies that images are paired with their
// masks by the naming convention, that a maskless image is excluded rather
// than paired, and that an orphan mask does not create a pair.
func TestIndexDir_PairsAndExclusions(t *testing.T) {
	tmp := t.TempDir()

	writePairFiles(t, tmp, "a", 8, 8, color.White, true)
	writePairFiles(t, tmp, "b", 8, 8, color.White, true)
	// c has no mask; d_mask has no image.
	writePNGFile(t, filepath.Join(tmp, "c.png"), 8, 8, color.White)
	writePNGFile(t, filepath.Join(tmp, "d_mask.png"), 8, 8, color.Black)

	ix, err := IndexDir(tmp)
	if err != nil {
		t.Fatalf("IndexDir failed: %v", err)
	}
	if got := len(ix.Images); got != 3 {
		t.Errorf("expected 3 images, got %d", got)
	}
	if got := len(ix.Masks); got != 3 {
		t.Errorf("expected 3 masks, got %d", got)
	}
	if got := len(ix.Pairs()); got != 2 {
		t.Fatalf("expected 2 pairs, got %d", got)
	}
	for _, p := range ix.Pairs() {
		if MaskPathFor(p.Image) != p.Mask {
			t.Errorf("pair %v does not follow the naming convention", p)
		}
	}
	if got := ix.Skipped(); len(got) != 1 || filepath.Base(got[0]) != "c.png" {
		t.Errorf("expected c.png to be the only skipped image, got %v", got)
	}
}

// TestIndexDir_Deterministic verifies that two scans of the same directory
// produce identical ordered pair lists.
func TestIndexDir_Deterministic(t *testing.T) {
	tmp := t.TempDir()
	for _, stem := range []string{"x1", "x2", "x3"} {
		writePairFiles(t, tmp, stem, 4, 4, color.White, true)
	}

	first, err := IndexDir(tmp)
	if err != nil {
		t.Fatalf("first IndexDir failed: %v", err)
	}
	second, err := IndexDir(tmp)
	if err != nil {
		t.Fatalf("second IndexDir failed: %v", err)
	}
	if !reflect.DeepEqual(first.Pairs(), second.Pairs()) {
		t.Errorf("pair lists differ between scans:\n%v\n%v", first.Pairs(), second.Pairs())
	}
}

// TestIndexDir_EmptyDir verifies that an existing but empty directory is not
// an error and reports zero counts.
func TestIndexDir_EmptyDir(t *testing.T) {
	ix, err := IndexDir(t.TempDir())
	if err != nil {
		t.Fatalf("IndexDir on empty dir failed: %v", err)
	}
	if len(ix.Images) != 0 || len(ix.Masks) != 0 || len(ix.Pairs()) != 0 {
		t.Errorf("expected empty index, got %d images, %d masks, %d pairs",
			len(ix.Images), len(ix.Masks), len(ix.Pairs()))
	}
}

// TestIndexDir_MissingRoot verifies the absent-directory error condition.
func TestIndexDir_MissingRoot(t *testing.T) {
	if _, err := IndexDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatal("expected an error for a missing data root")
	}
}

func TestMaskPathFor(t *testing.T) {
	got := MaskPathFor(filepath.Join("d", "slice_12.png"))
	want := filepath.Join("d", "slice_12_mask.png")
	if got != want {
		t.Errorf("MaskPathFor = %q, want %q", got, want)
	}
}
