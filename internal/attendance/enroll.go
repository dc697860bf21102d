package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/andresmejia3/facepunch/internal/types"
)

// Enroller registers identities from images.
type Enroller struct {
	extractor Extractor
	gallery   Gallery
	cache     *Cache
	policy    FacePolicy
}

// NewEnroller wires an Enroller. cache may be nil when no recorder shares the process.
func NewEnroller(ex Extractor, g Gallery, cache *Cache, policy FacePolicy) *Enroller {
	return &Enroller{extractor: ex, gallery: g, cache: cache, policy: policy}
}

// EnrollFromImage extracts a signature from img and stores it under uniqueID,
// replacing any previous enrollment of the same id.
func (e *Enroller) EnrollFromImage(ctx context.Context, uniqueID, displayName string, img []byte) (types.Identity, error) {
	uniqueID = strings.TrimSpace(uniqueID)
	displayName = strings.TrimSpace(displayName)
	if uniqueID == "" {
		return types.Identity{}, types.Invalid("unique_id", "must not be empty")
	}
	if displayName == "" {
		return types.Identity{}, types.Invalid("display_name", "must not be empty")
	}

	face, err := extractOne(ctx, e.extractor, e.policy, img)
	if err != nil {
		return types.Identity{}, err
	}

	id, err := e.gallery.Enroll(ctx, uniqueID, displayName, face.Signature)
	if err != nil {
		return types.Identity{}, err
	}

	if e.cache != nil {
		if err := e.cache.Reload(); err != nil {
			log.Printf("attendance: gallery reload after enrolling %s: %v", uniqueID, err)
		}
	}
	return id, nil
}

// EnrollFromSource grabs a frame from src and enrolls it.
func (e *Enroller) EnrollFromSource(ctx context.Context, src ImageSource, uniqueID, displayName string) (types.Identity, error) {
	img, err := frame(ctx, src)
	if err != nil {
		return types.Identity{}, err
	}
	return e.EnrollFromImage(ctx, uniqueID, displayName, img)
}

// frame normalizes source failures to ErrImageUnavailable.
func frame(ctx context.Context, src ImageSource) ([]byte, error) {
	img, err := src.Frame(ctx)
	if err != nil {
		if errors.Is(err, types.ErrImageUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", types.ErrImageUnavailable, err)
	}
	return img, nil
}
