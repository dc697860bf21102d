// Package match finds the enrolled identity closest to a probe signature.
package match

import (
	"github.com/andresmejia3/facepunch/internal/types"
	"gonum.org/v1/gonum/floats"
)

// DefaultThreshold is the maximum accepted distance. Lower is stricter; 0.4-0.6 is the usual range for dlib encodings.
const DefaultThreshold = 0.5

// Distance returns the Euclidean distance between two signatures of equal length.
func Distance(a, b types.Signature) float64 {
	return floats.Distance(a, b, 2)
}

// FindBestMatch compares probe against every gallery entry and returns the nearest one.
// Ties go to the entry that appears first in gallery order.
// Confidence is 1 - distance, not clamped: it is negative for distances above 1.
func FindBestMatch(probe types.Signature, gallery []types.GalleryEntry, threshold float64) (types.MatchResult, error) {
	if len(gallery) == 0 {
		return types.MatchResult{}, types.ErrEmptyGallery
	}
	if len(probe) == 0 {
		return types.MatchResult{}, types.Invalid("signature", "probe is empty")
	}

	bestIdx := -1
	bestDist := 0.0
	for i := range gallery {
		sig := gallery[i].Signature
		if len(sig) != len(probe) {
			return types.MatchResult{}, types.Invalid("signature",
				"probe has %d values but %q has %d", len(probe), gallery[i].Identity.UniqueID, len(sig))
		}
		d := Distance(probe, sig)
		if bestIdx == -1 || d < bestDist {
			bestIdx = i
			bestDist = d
		}
	}

	res := types.MatchResult{
		Distance:   bestDist,
		Confidence: 1 - bestDist,
	}
	if bestDist <= threshold {
		res.Matched = true
		entry := gallery[bestIdx]
		res.Entry = &entry
	}
	return res, nil
}
