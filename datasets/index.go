package datasets

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// MaskMarker is the filename fragment that distinguishes a mask file from the
// slice image it annotates: `<stem>.<ext>` pairs with `<stem>_mask.<ext>`.
const MaskMarker = "_mask"

// rasterExts are the single-frame raster formats the indexer considers.
var rasterExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
}

// SamplePair joins a slice image with its ground-truth mask. Pairs are
// resolved once at indexing time; a pair in this table is guaranteed to have
// both files present on disk at the moment the index was built.
type SamplePair struct {
	Image string
	Mask  string
}

// Index holds the result of scanning a data root: the sorted image and mask
// path lists and the validated pairing table derived from them.
type Index struct {
	Root string

	// Images are the non-mask raster files found under Root, sorted.
	Images []string

	// Masks are the raster files carrying the MaskMarker, sorted.
	Masks []string

	pairs   []SamplePair
	skipped []string
}

// IndexDir walks the directory tree under root, classifies every raster file
// as image or mask by the MaskMarker convention, and builds the pairing
// table. Images without a resolvable mask are excluded from the pair list
// and recorded; each exclusion is logged as a warning.
//
// The discovered counts are always logged, including zero, so an empty or
// mislaid data directory is visible immediately rather than as an empty
// training run.
func IndexDir(root string) (*Index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("data root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data root %s is not a directory", root)
	}

	ix := &Index{Root: root}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !rasterExts[ext] {
			return nil
		}
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if strings.HasSuffix(stem, MaskMarker) {
			ix.Masks = append(ix.Masks, path)
		} else {
			ix.Images = append(ix.Images, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk data root %s: %w", root, err)
	}

	sort.Strings(ix.Images)
	sort.Strings(ix.Masks)

	maskSet := make(map[string]bool, len(ix.Masks))
	for _, m := range ix.Masks {
		maskSet[m] = true
	}

	for _, img := range ix.Images {
		mask := MaskPathFor(img)
		if !maskSet[mask] {
			log.Printf("warning: no mask found for %s (expected %s), excluding", img, mask)
			ix.skipped = append(ix.skipped, img)
			continue
		}
		ix.pairs = append(ix.pairs, SamplePair{Image: img, Mask: mask})
	}

	log.Printf("indexed %s: %d images, %d masks, %d pairs (%d excluded)",
		root, len(ix.Images), len(ix.Masks), len(ix.pairs), len(ix.skipped))

	return ix, nil
}

// MaskPathFor derives the mask path for an image path by the fixed naming
// convention: the MaskMarker is inserted between stem and extension.
func MaskPathFor(imagePath string) string {
	ext := filepath.Ext(imagePath)
	return strings.TrimSuffix(imagePath, ext) + MaskMarker + ext
}

// Pairs returns the validated pairing table. The returned slice is owned by
// the Index; callers must not mutate it.
func (ix *Index) Pairs() []SamplePair {
	return ix.pairs
}

// Skipped returns the image paths that were excluded for lack of a mask.
func (ix *Index) Skipped() []string {
	return ix.skipped
}
