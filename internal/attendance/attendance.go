// Package attendance enrolls identities and records punches against the face gallery.
package attendance

import (
	"context"
	"fmt"
	"strings"

	"github.com/andresmejia3/facepunch/internal/types"
	"golang.org/x/text/unicode/norm"
)

// Extractor turns an image into zero or more face signatures.
type Extractor interface {
	Extract(ctx context.Context, img []byte) ([]types.Face, error)
}

// ImageSource produces a still image on demand (file, camera).
type ImageSource interface {
	Frame(ctx context.Context) ([]byte, error)
}

// Ledger is the append-only attendance log.
type Ledger interface {
	Append(ctx context.Context, identityID, displayName, action string, confidence float64) (types.AttendanceEvent, error)
}

// Gallery persists enrolled signatures.
type Gallery interface {
	Enroll(ctx context.Context, uniqueID, displayName string, sig types.Signature) (types.Identity, error)
	LoadAll() ([]types.GalleryEntry, error)
}

// DefaultActions are the punch labels offered when none are configured.
var DefaultActions = []string{
	"Início do expediente",
	"Saída para almoço",
	"Volta do almoço",
	"Fim do expediente",
}

// FacePolicy decides which face is used when the extractor finds several.
type FacePolicy string

const (
	// PolicyFirst uses the first face reported by the extractor.
	PolicyFirst FacePolicy = "first"
	// PolicyLargest uses the face with the largest bounding box.
	PolicyLargest FacePolicy = "largest"
)

func ParseFacePolicy(s string) (FacePolicy, error) {
	switch p := FacePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PolicyFirst:
		return PolicyFirst, nil
	case PolicyLargest:
		return PolicyLargest, nil
	default:
		return "", types.Invalid("face_policy", "unknown policy %q (want first or largest)", s)
	}
}

// Pick selects one face. faces must not be empty.
func (p FacePolicy) Pick(faces []types.Face) types.Face {
	best := faces[0]
	if p != PolicyLargest {
		return best
	}
	maxArea := best.Location.Area()
	for _, f := range faces[1:] {
		if area := f.Location.Area(); area > maxArea {
			maxArea = area
			best = f
		}
	}
	return best
}

// normalizeLabel makes labels typed on different keyboards compare equal.
func normalizeLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// ActionSet is the configured list of punch labels.
type ActionSet struct {
	labels []string
	index  map[string]string
}

// NewActionSet validates labels: at least one, none blank, no duplicates once normalized.
func NewActionSet(labels []string) (*ActionSet, error) {
	if len(labels) == 0 {
		return nil, types.Invalid("actions", "at least one action is required")
	}
	as := &ActionSet{index: make(map[string]string, len(labels))}
	for _, l := range labels {
		n := normalizeLabel(l)
		if n == "" {
			return nil, types.Invalid("actions", "labels must not be blank")
		}
		if _, dup := as.index[n]; dup {
			return nil, types.Invalid("actions", "duplicate label %q", n)
		}
		as.index[n] = n
		as.labels = append(as.labels, n)
	}
	return as, nil
}

// Labels returns the labels in configured order.
func (a *ActionSet) Labels() []string {
	return append([]string(nil), a.labels...)
}

// Resolve returns the configured label matching action.
func (a *ActionSet) Resolve(action string) (string, error) {
	if l, ok := a.index[normalizeLabel(action)]; ok {
		return l, nil
	}
	return "", types.Invalid("action", "%q is not one of %s", action, strings.Join(a.labels, ", "))
}

func extractOne(ctx context.Context, ex Extractor, policy FacePolicy, img []byte) (types.Face, error) {
	faces, err := ex.Extract(ctx, img)
	if err != nil {
		return types.Face{}, fmt.Errorf("extracting signature: %w", err)
	}
	if len(faces) == 0 {
		return types.Face{}, types.ErrNoFaceDetected
	}
	return policy.Pick(faces), nil
}
