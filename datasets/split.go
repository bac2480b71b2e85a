package datasets

import (
	"fmt"
	"math"
	"math/rand"
)

// Split partitions pairs into disjoint train and validation lists. The split
// is created once, before training starts, and is deterministic for a fixed
// seed: the pair list is shuffled with a seeded generator and then cut at
// the validation fraction. Every pair lands in exactly one of the two lists.
func Split(pairs []SamplePair, valFraction float64, seed int64) (train, val []SamplePair, err error) {
	if valFraction < 0 || valFraction >= 1 {
		return nil, nil, fmt.Errorf("validation fraction %.3f out of range [0,1)", valFraction)
	}

	shuffled := make([]SamplePair, len(pairs))
	copy(shuffled, pairs)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	nVal := int(math.Round(float64(len(shuffled)) * valFraction))
	if nVal > len(shuffled) {
		nVal = len(shuffled)
	}
	cut := len(shuffled) - nVal
	return shuffled[:cut], shuffled[cut:], nil
}
