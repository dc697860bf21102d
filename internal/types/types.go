package types

import "time"

// TimestampLayout is the local-time, second-precision format stored in the ledger.
const TimestampLayout = "2006-01-02 15:04:05"

// Signature is a fixed-length face encoding produced by the extractor (128-d for dlib).
type Signature []float64

// Location is the face bounding box as reported by the extractor.
type Location struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// Area returns the box area, 0 for degenerate boxes.
func (l Location) Area() int {
	h := l.Bottom - l.Top
	w := l.Right - l.Left
	if h <= 0 || w <= 0 {
		return 0
	}
	return h * w
}

// Face is a single extractor result.
type Face struct {
	Signature Signature
	Location  Location
}

// Identity is an enrolled employee.
type Identity struct {
	UniqueID    string    `json:"unique_id"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}

// GalleryEntry pairs an identity with its stored signature.
type GalleryEntry struct {
	Identity  Identity
	Signature Signature
}

// AttendanceEvent is one immutable ledger row.
type AttendanceEvent struct {
	ID          string  `json:"id"`
	IdentityID  string  `json:"identity_id"`
	DisplayName string  `json:"display_name"`
	Action      string  `json:"action"`
	Timestamp   string  `json:"timestamp"`
	Confidence  float64 `json:"confidence"`
}

// MatchResult is the outcome of comparing a probe against the gallery.
// Entry is nil unless Matched is true.
type MatchResult struct {
	Matched    bool
	Entry      *GalleryEntry
	Distance   float64
	Confidence float64
}
