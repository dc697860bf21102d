// Package gallery persists one face signature per enrolled identity as a JSON file in a directory.
package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/gofrs/flock"
	"github.com/google/renameio"
)

// ErrIdentityNotFound indicates no signature file exists for the requested identity.
var ErrIdentityNotFound = errors.New("identity not found")

const (
	fileExt  = ".json"
	lockName = ".gallery.lock"
)

// IdentityIndex is the queryable identity table kept alongside the signature files.
type IdentityIndex interface {
	UpsertIdentity(ctx context.Context, id types.Identity, facePath string) error
	RenameIdentity(ctx context.Context, uniqueID, displayName string) error
}

// record is the on-disk layout of a gallery entry.
type record struct {
	UniqueID    string    `json:"unique_id"`
	DisplayName string    `json:"display_name"`
	Signature   []float64 `json:"signature"`
	CreatedAt   time.Time `json:"created_at"`
}

// Skipped describes a gallery file that could not be loaded.
type Skipped struct {
	Path   string
	Reason string
}

// Report is the result of a full gallery load.
type Report struct {
	Entries []types.GalleryEntry
	Skipped []Skipped
}

// Store manages the signature directory. Writes are atomic for readers (temp file + rename)
// and serialized across processes by a lock file in the directory.
type Store struct {
	dir   string
	index IdentityIndex
	mu    sync.Mutex
	lock  *flock.Flock
}

// New returns a Store rooted at dir. index may be nil when no identity table is configured.
func New(dir string, index IdentityIndex) *Store {
	return &Store{
		dir:   dir,
		index: index,
		lock:  flock.New(filepath.Join(dir, lockName)),
	}
}

// Dir returns the gallery directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the signature file path for uniqueID.
func (s *Store) Path(uniqueID string) string {
	return filepath.Join(s.dir, uniqueID+fileExt)
}

// Enroll validates and persists the signature for uniqueID, replacing any previous entry.
func (s *Store) Enroll(ctx context.Context, uniqueID, displayName string, sig types.Signature) (types.Identity, error) {
	uniqueID = strings.TrimSpace(uniqueID)
	displayName = strings.TrimSpace(displayName)
	if err := validateID(uniqueID); err != nil {
		return types.Identity{}, err
	}
	if displayName == "" {
		return types.Identity{}, types.Invalid("display_name", "must not be empty")
	}
	if len(sig) == 0 {
		return types.Identity{}, types.Invalid("signature", "must not be empty")
	}

	unlock, err := s.acquire()
	if err != nil {
		return types.Identity{}, err
	}
	defer unlock()

	rep, err := s.Load()
	if err != nil {
		return types.Identity{}, err
	}
	if len(rep.Entries) > 0 {
		if dim := len(rep.Entries[0].Signature); dim != len(sig) {
			return types.Identity{}, types.Invalid("signature",
				"gallery dimension is %d, got %d", dim, len(sig))
		}
	}

	path := s.Path(uniqueID)
	prev, prevErr := readRecord(path)

	id := types.Identity{
		UniqueID:    uniqueID,
		DisplayName: displayName,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.write(record{
		UniqueID:    id.UniqueID,
		DisplayName: id.DisplayName,
		Signature:   sig,
		CreatedAt:   id.CreatedAt,
	}); err != nil {
		return types.Identity{}, err
	}

	if s.index != nil {
		if err := s.index.UpsertIdentity(ctx, id, path); err != nil {
			s.rollback(path, prev, prevErr == nil && prev.UniqueID == uniqueID)
			return types.Identity{}, types.Storage("index identity", err)
		}
	}
	return id, nil
}

// Rename changes the display name of an enrolled identity without touching its signature.
func (s *Store) Rename(ctx context.Context, uniqueID, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if err := validateID(uniqueID); err != nil {
		return err
	}
	if displayName == "" {
		return types.Invalid("display_name", "must not be empty")
	}

	unlock, err := s.acquire()
	if err != nil {
		return err
	}
	defer unlock()

	rec, err := readRecord(s.Path(uniqueID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrIdentityNotFound, uniqueID)
		}
		return types.Storage("read signature", err)
	}
	rec.DisplayName = displayName
	if err := s.write(rec); err != nil {
		return err
	}

	if s.index != nil {
		if err := s.index.RenameIdentity(ctx, uniqueID, displayName); err != nil {
			return types.Storage("rename identity", err)
		}
	}
	return nil
}

// LoadAll returns every valid entry ordered by file name. Corrupt files are logged and skipped.
func (s *Store) LoadAll() ([]types.GalleryEntry, error) {
	rep, err := s.Load()
	if err != nil {
		return nil, err
	}
	for _, sk := range rep.Skipped {
		log.Printf("gallery: skipping %s: %s", sk.Path, sk.Reason)
	}
	return rep.Entries, nil
}

// Load reads the directory and reports both loaded and skipped files.
// A missing directory is an empty gallery. The dimension shared by most valid entries
// wins (ties go to the most recently enrolled); entries of any other length are skipped
// so the match engine never sees mixed sizes.
func (s *Store) Load() (Report, error) {
	var rep Report

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rep, nil
		}
		return rep, types.Storage("read gallery directory", err)
	}

	type loaded struct {
		path string
		rec  record
	}
	var valid []loaded
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		path := filepath.Join(s.dir, name)

		rec, err := readRecord(path)
		if err != nil {
			rep.Skipped = append(rep.Skipped, Skipped{Path: path, Reason: err.Error()})
			continue
		}
		if reason := checkRecord(rec, name); reason != "" {
			rep.Skipped = append(rep.Skipped, Skipped{Path: path, Reason: reason})
			continue
		}
		valid = append(valid, loaded{path: path, rec: rec})
	}

	recs := make([]record, len(valid))
	for i, v := range valid {
		recs[i] = v.rec
	}
	dim := majorityDim(recs)

	for _, v := range valid {
		if len(v.rec.Signature) != dim {
			rep.Skipped = append(rep.Skipped, Skipped{
				Path:   v.path,
				Reason: fmt.Sprintf("signature has %d values, gallery uses %d", len(v.rec.Signature), dim),
			})
			continue
		}
		rep.Entries = append(rep.Entries, types.GalleryEntry{
			Identity: types.Identity{
				UniqueID:    v.rec.UniqueID,
				DisplayName: v.rec.DisplayName,
				CreatedAt:   v.rec.CreatedAt,
			},
			Signature: v.rec.Signature,
		})
	}
	return rep, nil
}

// majorityDim returns the signature length held by the most records.
func majorityDim(recs []record) int {
	type tally struct {
		count  int
		latest time.Time
	}
	tallies := map[int]*tally{}
	for _, r := range recs {
		t, ok := tallies[len(r.Signature)]
		if !ok {
			t = &tally{}
			tallies[len(r.Signature)] = t
		}
		t.count++
		if r.CreatedAt.After(t.latest) {
			t.latest = r.CreatedAt
		}
	}

	best, bestDim := (*tally)(nil), 0
	for dim, t := range tallies {
		if best == nil || t.count > best.count ||
			(t.count == best.count && (t.latest.After(best.latest) || (t.latest.Equal(best.latest) && dim > bestDim))) {
			best, bestDim = t, dim
		}
	}
	return bestDim
}

// acquire takes the in-process mutex and the cross-process file lock.
func (s *Store) acquire() (func(), error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, types.Storage("create gallery directory", err)
	}
	s.mu.Lock()
	if err := s.lock.Lock(); err != nil {
		s.mu.Unlock()
		return nil, types.Storage("lock gallery", err)
	}
	return func() {
		if err := s.lock.Unlock(); err != nil {
			log.Printf("gallery: unlock %s: %v", s.lock.Path(), err)
		}
		s.mu.Unlock()
	}, nil
}

func (s *Store) write(rec record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return types.Storage("encode signature", err)
	}
	if err := renameio.WriteFile(s.Path(rec.UniqueID), data, 0644); err != nil {
		return types.Storage("write signature", err)
	}
	return nil
}

// rollback restores the previous signature file, or removes the new one when there was none.
func (s *Store) rollback(path string, prev record, hadPrev bool) {
	var err error
	if hadPrev {
		err = s.write(prev)
	} else {
		err = os.Remove(path)
	}
	if err != nil {
		log.Printf("gallery: rollback %s: %v", path, err)
	}
}

func readRecord(path string) (record, error) {
	var rec record
	data, err := os.ReadFile(path) //nolint:gosec // G304: path built from the gallery directory
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("parsing signature file: %w", err)
	}
	return rec, nil
}

func checkRecord(rec record, name string) string {
	switch {
	case rec.UniqueID == "":
		return "missing unique_id"
	case rec.UniqueID+fileExt != name:
		return fmt.Sprintf("unique_id %q does not match file name", rec.UniqueID)
	case len(rec.Signature) == 0:
		return "empty signature"
	}
	return ""
}

// validateID rejects ids that cannot be used verbatim as a file name inside the gallery.
func validateID(id string) error {
	switch {
	case id == "":
		return types.Invalid("unique_id", "must not be empty")
	case strings.ContainsAny(id, `/\`), id != filepath.Base(id):
		return types.Invalid("unique_id", "%q must not contain path separators", id)
	case strings.HasPrefix(id, "."):
		return types.Invalid("unique_id", "%q must not start with a dot", id)
	}
	return nil
}
