package attendance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/andresmejia3/facepunch/internal/types"
)

// fakeExtractor returns Faces for every image, or Err when set.
type fakeExtractor struct {
	Faces []types.Face
	Err   error
	calls int
}

func (f *fakeExtractor) Extract(ctx context.Context, img []byte) ([]types.Face, error) {
	f.calls++
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Faces, nil
}

// fakeGallery is an in-memory Gallery with error injection.
type fakeGallery struct {
	mu      sync.Mutex
	entries []types.GalleryEntry
	LoadErr error
	loads   int
}

func (g *fakeGallery) Enroll(ctx context.Context, uniqueID, displayName string, sig types.Signature) (types.Identity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(sig) == 0 {
		return types.Identity{}, types.Invalid("signature", "must not be empty")
	}
	id := types.Identity{UniqueID: uniqueID, DisplayName: displayName}
	for i, e := range g.entries {
		if e.Identity.UniqueID == uniqueID {
			g.entries[i] = types.GalleryEntry{Identity: id, Signature: sig}
			return id, nil
		}
	}
	g.entries = append(g.entries, types.GalleryEntry{Identity: id, Signature: sig})
	return id, nil
}

func (g *fakeGallery) LoadAll() ([]types.GalleryEntry, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.loads++
	if g.LoadErr != nil {
		return nil, g.LoadErr
	}
	return append([]types.GalleryEntry(nil), g.entries...), nil
}

// fakeLedger records appends in memory.
type fakeLedger struct {
	mu        sync.Mutex
	events    []types.AttendanceEvent
	AppendErr error
}

func (l *fakeLedger) Append(ctx context.Context, identityID, displayName, action string, confidence float64) (types.AttendanceEvent, error) {
	if l.AppendErr != nil {
		return types.AttendanceEvent{}, l.AppendErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ev := types.AttendanceEvent{
		ID:          fmt.Sprintf("ev-%d", len(l.events)+1),
		IdentityID:  identityID,
		DisplayName: displayName,
		Action:      action,
		Timestamp:   "2024-03-04 08:00:00",
		Confidence:  confidence,
	}
	l.events = append(l.events, ev)
	return ev, nil
}

type fakeSource struct {
	img []byte
	err error
}

func (s fakeSource) Frame(ctx context.Context) ([]byte, error) { return s.img, s.err }

func face(vals ...float64) types.Face {
	return types.Face{Signature: vals, Location: types.Location{Top: 0, Right: 10, Bottom: 10, Left: 0}}
}

type fixture struct {
	ex       *fakeExtractor
	gallery  *fakeGallery
	ledger   *fakeLedger
	cache    *Cache
	enroller *Enroller
	recorder *Recorder
	states   []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ex:      &fakeExtractor{},
		gallery: &fakeGallery{},
		ledger:  &fakeLedger{},
	}
	actions, err := NewActionSet(DefaultActions)
	if err != nil {
		t.Fatal(err)
	}
	f.cache = NewCache(f.gallery)
	f.enroller = NewEnroller(f.ex, f.gallery, f.cache, PolicyFirst)
	f.recorder = NewRecorder(f.ex, f.cache, f.ledger, actions, PolicyFirst)
	f.recorder.OnState = func(s State, err error) { f.states = append(f.states, s) }
	return f
}

func TestEnrollThenPunch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.ex.Faces = []types.Face{face(0, 0, 0)}
	id, err := f.enroller.EnrollFromImage(ctx, " E1 ", "Alice", []byte("img"))
	if err != nil {
		t.Fatalf("EnrollFromImage: %v", err)
	}
	if id.UniqueID != "E1" {
		t.Errorf("unique id = %q, want trimmed E1", id.UniqueID)
	}

	f.ex.Faces = []types.Face{face(0.1, 0, 0)}
	ev, err := f.recorder.RecordPunch(ctx, []byte("probe"), "Início do expediente", 0.5)
	if err != nil {
		t.Fatalf("RecordPunch: %v", err)
	}
	if ev.IdentityID != "E1" || ev.DisplayName != "Alice" || ev.Action != "Início do expediente" {
		t.Errorf("event = %+v", ev)
	}
	if math.Abs(ev.Confidence-0.9) > 1e-9 {
		t.Errorf("confidence = %v, want 0.9", ev.Confidence)
	}
	if len(f.ledger.events) != 1 {
		t.Errorf("ledger has %d events, want 1", len(f.ledger.events))
	}

	want := []State{StateExtracting, StateMatching, StateRecording, StateDone, StateIdle}
	if fmt.Sprint(f.states) != fmt.Sprint(want) {
		t.Errorf("states = %v, want %v", f.states, want)
	}
}

func TestEnrollReloadsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// Prime the cache while the gallery is empty
	if snap, err := f.cache.Snapshot(); err != nil || len(snap) != 0 {
		t.Fatalf("Snapshot = %v, %v", snap, err)
	}

	f.ex.Faces = []types.Face{face(1, 1)}
	if _, err := f.enroller.EnrollFromImage(ctx, "E2", "Bruno", []byte("img")); err != nil {
		t.Fatal(err)
	}

	snap, err := f.cache.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if len(snap) != 1 || snap[0].Identity.UniqueID != "E2" {
		t.Errorf("cache not reloaded after enrollment: %+v", snap)
	}
}

func TestRecordPunchFailures(t *testing.T) {
	ctx := context.Background()
	storageErr := types.Storage("append attendance event", errors.New("disk full"))

	tests := []struct {
		name       string
		enrolled   bool
		faces      []types.Face
		extractErr error
		appendErr  error
		action     string
		threshold  float64
		check      func(t *testing.T, err error)
		final      State
	}{
		{
			name: "No enrollments", enrolled: false, faces: []types.Face{face(0, 0)},
			action: "Fim do expediente", threshold: 0.5,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, types.ErrNoEnrollments) {
					t.Errorf("expected ErrNoEnrollments, got %v", err)
				}
			},
			final: StateFailed,
		},
		{
			name: "No face", enrolled: true, faces: nil,
			action: "Fim do expediente", threshold: 0.5,
			check: func(t *testing.T, err error) {
				if !errors.Is(err, types.ErrNoFaceDetected) {
					t.Errorf("expected ErrNoFaceDetected, got %v", err)
				}
			},
			final: StateFailed,
		},
		{
			name: "Not recognized", enrolled: true, faces: []types.Face{face(0.6, 0)},
			action: "Fim do expediente", threshold: 0.5,
			check: func(t *testing.T, err error) {
				var nm *types.NoMatchError
				if !errors.As(err, &nm) {
					t.Fatalf("expected NoMatchError, got %v", err)
				}
				if math.Abs(nm.Distance-0.6) > 1e-9 {
					t.Errorf("distance = %v, want 0.6", nm.Distance)
				}
			},
			final: StateRejected,
		},
		{
			name: "Unknown action", enrolled: true, faces: []types.Face{face(0, 0)},
			action: "Coffee break", threshold: 0.5,
			check: func(t *testing.T, err error) {
				var ve *types.ValidationError
				if !errors.As(err, &ve) || ve.Field != "action" {
					t.Errorf("expected action ValidationError, got %v", err)
				}
			},
			final: StateFailed,
		},
		{
			name: "Bad threshold", enrolled: true, faces: []types.Face{face(0, 0)},
			action: "Fim do expediente", threshold: -0.1,
			check: func(t *testing.T, err error) {
				var ve *types.ValidationError
				if !errors.As(err, &ve) {
					t.Errorf("expected ValidationError, got %v", err)
				}
			},
			final: StateFailed,
		},
		{
			name: "Extractor failure", enrolled: true, extractErr: errors.New("worker crashed"),
			action: "Fim do expediente", threshold: 0.5,
			check: func(t *testing.T, err error) {
				if err == nil {
					t.Error("expected extraction error")
				}
			},
			final: StateFailed,
		},
		{
			name: "Ledger failure", enrolled: true, faces: []types.Face{face(0, 0)}, appendErr: storageErr,
			action: "Fim do expediente", threshold: 0.5,
			check: func(t *testing.T, err error) {
				var se *types.StorageError
				if !errors.As(err, &se) {
					t.Errorf("expected StorageError, got %v", err)
				}
			},
			final: StateFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.enrolled {
				f.gallery.entries = []types.GalleryEntry{{
					Identity:  types.Identity{UniqueID: "E1", DisplayName: "Alice"},
					Signature: types.Signature{0, 0},
				}}
			}
			f.ex.Faces = tt.faces
			f.ex.Err = tt.extractErr
			f.ledger.AppendErr = tt.appendErr

			ev, err := f.recorder.RecordPunch(ctx, []byte("probe"), tt.action, tt.threshold)
			tt.check(t, err)
			if ev.ID != "" {
				t.Errorf("failed punch returned an event: %+v", ev)
			}
			if len(f.ledger.events) != 0 {
				t.Errorf("failed punch wrote %d events", len(f.ledger.events))
			}
			if n := len(f.states); n < 2 || f.states[n-2] != tt.final || f.states[n-1] != StateIdle {
				t.Errorf("states = %v, want ... %v idle", f.states, tt.final)
			}
		})
	}
}

func TestZeroThresholdExactMatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gallery.entries = []types.GalleryEntry{{
		Identity:  types.Identity{UniqueID: "E1", DisplayName: "Alice"},
		Signature: types.Signature{0.25, 0.5},
	}}

	f.ex.Faces = []types.Face{face(0.25, 0.5)}
	ev, err := f.recorder.RecordPunch(ctx, []byte("img"), "Saída para almoço", 0)
	if err != nil {
		t.Fatalf("exact match at threshold 0: %v", err)
	}
	if ev.Confidence != 1 {
		t.Errorf("confidence = %v, want 1", ev.Confidence)
	}

	f.ex.Faces = []types.Face{face(0.25, 0.51)}
	var nm *types.NoMatchError
	if _, err := f.recorder.RecordPunch(ctx, []byte("img"), "Saída para almoço", 0); !errors.As(err, &nm) {
		t.Errorf("expected NoMatchError for a near match at threshold 0, got %v", err)
	}
}

func TestRecordPunchFromSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.gallery.entries = []types.GalleryEntry{{
		Identity:  types.Identity{UniqueID: "E1", DisplayName: "Alice"},
		Signature: types.Signature{0, 0},
	}}
	f.ex.Faces = []types.Face{face(0, 0)}

	if _, err := f.recorder.RecordPunchFromSource(ctx, fakeSource{img: []byte("jpeg")}, "Volta do almoço", 0.5); err != nil {
		t.Fatalf("RecordPunchFromSource: %v", err)
	}
	if f.states[0] != StateCapturing {
		t.Errorf("first state = %v, want capturing", f.states[0])
	}

	_, err := f.recorder.RecordPunchFromSource(ctx, fakeSource{err: errors.New("no camera")}, "Volta do almoço", 0.5)
	if !errors.Is(err, types.ErrImageUnavailable) {
		t.Errorf("expected ErrImageUnavailable, got %v", err)
	}
	if f.ex.calls != 1 {
		t.Errorf("extractor called %d times, want 1", f.ex.calls)
	}
}

func TestActionNormalization(t *testing.T) {
	// "Início" written with a combining acute accent (NFD)
	decomposed := "Ini\u0301cio do expediente"

	as, err := NewActionSet(DefaultActions)
	if err != nil {
		t.Fatal(err)
	}
	got, err := as.Resolve("  " + decomposed)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "Início do expediente" {
		t.Errorf("Resolve = %q", got)
	}

	if _, err := NewActionSet([]string{"Início do expediente", decomposed}); err == nil {
		t.Error("labels equal after normalization must be rejected as duplicates")
	}
	if _, err := NewActionSet(nil); err == nil {
		t.Error("empty action set must be rejected")
	}
	if _, err := NewActionSet([]string{"In", " "}); err == nil {
		t.Error("blank label must be rejected")
	}
}

func TestEnrollFailures(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		id    string
		disp  string
		faces []types.Face
		src   ImageSource
		check func(err error) bool
	}{
		{"Missing id", "", "Alice", []types.Face{face(1)}, nil, func(err error) bool {
			var ve *types.ValidationError
			return errors.As(err, &ve)
		}},
		{"Missing name", "E1", " ", []types.Face{face(1)}, nil, func(err error) bool {
			var ve *types.ValidationError
			return errors.As(err, &ve)
		}},
		{"No face", "E1", "Alice", nil, nil, func(err error) bool {
			return errors.Is(err, types.ErrNoFaceDetected)
		}},
		{"Source unavailable", "E1", "Alice", []types.Face{face(1)}, fakeSource{err: errors.New("gone")}, func(err error) bool {
			return errors.Is(err, types.ErrImageUnavailable)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.ex.Faces = tt.faces
			var err error
			if tt.src != nil {
				_, err = f.enroller.EnrollFromSource(ctx, tt.src, tt.id, tt.disp)
			} else {
				_, err = f.enroller.EnrollFromImage(ctx, tt.id, tt.disp, []byte("img"))
			}
			if !tt.check(err) {
				t.Errorf("unexpected error %v", err)
			}
			if len(f.gallery.entries) != 0 {
				t.Error("failed enrollment must not touch the gallery")
			}
		})
	}
}

func TestFacePolicy(t *testing.T) {
	small := types.Face{Signature: types.Signature{1}, Location: types.Location{Top: 0, Right: 5, Bottom: 5, Left: 0}}
	big := types.Face{Signature: types.Signature{2}, Location: types.Location{Top: 0, Right: 50, Bottom: 50, Left: 0}}
	faces := []types.Face{small, big}

	if got := PolicyFirst.Pick(faces); got.Signature[0] != 1 {
		t.Errorf("first policy picked %v", got.Signature)
	}
	if got := PolicyLargest.Pick(faces); got.Signature[0] != 2 {
		t.Errorf("largest policy picked %v", got.Signature)
	}

	tests := []struct {
		in      string
		want    FacePolicy
		wantErr bool
	}{
		{"", PolicyFirst, false},
		{"first", PolicyFirst, false},
		{" Largest ", PolicyLargest, false},
		{"random", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFacePolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFacePolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestCacheConcurrentReaders(t *testing.T) {
	g := &fakeGallery{entries: []types.GalleryEntry{{
		Identity:  types.Identity{UniqueID: "E1"},
		Signature: types.Signature{0},
	}}}
	c := NewCache(g)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if n%4 == 0 {
				if err := c.Reload(); err != nil {
					t.Errorf("Reload: %v", err)
				}
				return
			}
			snap, err := c.Snapshot()
			if err != nil || len(snap) != 1 {
				t.Errorf("Snapshot = %d entries, %v", len(snap), err)
			}
		}(i)
	}
	wg.Wait()
}

func TestCacheReloadFailureRetries(t *testing.T) {
	g := &fakeGallery{LoadErr: errors.New("permission denied")}
	c := NewCache(g)

	if _, err := c.Snapshot(); err == nil {
		t.Fatal("expected load error")
	}
	g.LoadErr = nil
	g.entries = []types.GalleryEntry{{Identity: types.Identity{UniqueID: "E1"}, Signature: types.Signature{1}}}

	snap, err := c.Snapshot()
	if err != nil || len(snap) != 1 {
		t.Errorf("Snapshot after recovery = %v, %v", snap, err)
	}
	if g.loads != 2 {
		t.Errorf("loads = %d, want 2", g.loads)
	}
}
