package match

import (
	"errors"
	"math"
	"testing"

	"github.com/andresmejia3/facepunch/internal/types"
)

func entry(id string, sig ...float64) types.GalleryEntry {
	return types.GalleryEntry{
		Identity:  types.Identity{UniqueID: id, DisplayName: "Name " + id},
		Signature: sig,
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a    types.Signature
		b    types.Signature
		want float64
	}{
		{"Identical vectors", types.Signature{0.3, -0.2, 0.9}, types.Signature{0.3, -0.2, 0.9}, 0.0},
		{"Unit apart", types.Signature{0, 0}, types.Signature{1, 0}, 1.0},
		{"3-4-5 triangle", types.Signature{0, 0}, types.Signature{3, 4}, 5.0},
		{"Symmetric", types.Signature{3, 4}, types.Signature{0, 0}, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if got < 0 {
				t.Fatalf("Distance() = %v, must be non-negative", got)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Distance() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFindBestMatch_Accepts(t *testing.T) {
	gallery := []types.GalleryEntry{entry("E1", 0.1, 0, 0)}
	probe := types.Signature{0, 0, 0}

	res, err := FindBestMatch(probe, gallery, 0.5)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a match")
	}
	if res.Entry == nil || res.Entry.Identity.UniqueID != "E1" {
		t.Fatalf("expected E1, got %+v", res.Entry)
	}
	if math.Abs(res.Distance-0.1) > 1e-9 {
		t.Errorf("Distance = %v, want 0.1", res.Distance)
	}
	if math.Abs(res.Confidence-0.9) > 1e-9 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
}

func TestFindBestMatch_RejectsAboveThreshold(t *testing.T) {
	gallery := []types.GalleryEntry{entry("E1", 0.6, 0), entry("E2", 0, 0.9)}

	res, err := FindBestMatch(types.Signature{0, 0}, gallery, 0.5)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if res.Matched {
		t.Fatal("expected no match at distance 0.6 with threshold 0.5")
	}
	if res.Entry != nil {
		t.Errorf("rejected result should not carry an entry, got %+v", res.Entry)
	}
	if math.Abs(res.Distance-0.6) > 1e-9 {
		t.Errorf("Distance = %v, want 0.6 (best rejected)", res.Distance)
	}
}

func TestFindBestMatch_ThresholdIsInclusive(t *testing.T) {
	gallery := []types.GalleryEntry{entry("E1", 0.5, 0)}

	res, err := FindBestMatch(types.Signature{0, 0}, gallery, 0.5)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if !res.Matched {
		t.Error("distance equal to threshold should match")
	}
}

func TestFindBestMatch_TieGoesToFirst(t *testing.T) {
	gallery := []types.GalleryEntry{
		entry("far", 0, 0.4),
		entry("first", 0.2, 0),
		entry("second", -0.2, 0),
	}

	for i := 0; i < 10; i++ {
		res, err := FindBestMatch(types.Signature{0, 0}, gallery, 0.5)
		if err != nil {
			t.Fatalf("FindBestMatch failed: %v", err)
		}
		if res.Entry.Identity.UniqueID != "first" {
			t.Fatalf("expected tie to resolve to %q, got %q", "first", res.Entry.Identity.UniqueID)
		}
	}
}

func TestFindBestMatch_NegativeConfidence(t *testing.T) {
	gallery := []types.GalleryEntry{entry("E1", 3, 4)}

	res, err := FindBestMatch(types.Signature{0, 0}, gallery, 10)
	if err != nil {
		t.Fatalf("FindBestMatch failed: %v", err)
	}
	if !res.Matched {
		t.Fatal("expected a match with a permissive threshold")
	}
	if math.Abs(res.Confidence-(-4)) > 1e-9 {
		t.Errorf("Confidence = %v, want -4 (unclamped)", res.Confidence)
	}
}

func TestFindBestMatch_EmptyGallery(t *testing.T) {
	res, err := FindBestMatch(types.Signature{0, 0}, nil, 0.5)
	if !errors.Is(err, types.ErrEmptyGallery) {
		t.Fatalf("expected ErrEmptyGallery, got %v", err)
	}
	if res.Matched {
		t.Error("empty gallery must never produce a match")
	}
}

func TestFindBestMatch_DimensionMismatch(t *testing.T) {
	gallery := []types.GalleryEntry{entry("E1", 0, 0, 0)}

	_, err := FindBestMatch(types.Signature{0, 0}, gallery, 0.5)
	var ve *types.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
