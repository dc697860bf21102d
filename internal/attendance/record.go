package attendance

import (
	"context"
	"math"

	"github.com/andresmejia3/facepunch/internal/match"
	"github.com/andresmejia3/facepunch/internal/types"
)

// State is a step of a punch attempt.
type State int

const (
	StateIdle State = iota
	StateCapturing
	StateExtracting
	StateMatching
	StateRecording
	StateDone
	StateRejected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateExtracting:
		return "extracting"
	case StateMatching:
		return "matching"
	case StateRecording:
		return "recording"
	case StateDone:
		return "done"
	case StateRejected:
		return "rejected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// StateObserver is told about every transition. err is set for StateRejected and StateFailed.
type StateObserver func(state State, err error)

// Recorder matches punches against the gallery and appends them to the ledger.
type Recorder struct {
	extractor Extractor
	cache     *Cache
	ledger    Ledger
	actions   *ActionSet
	policy    FacePolicy

	// OnState, when set, receives state transitions. It runs on the caller's goroutine.
	OnState StateObserver
}

func NewRecorder(ex Extractor, cache *Cache, ledger Ledger, actions *ActionSet, policy FacePolicy) *Recorder {
	return &Recorder{extractor: ex, cache: cache, ledger: ledger, actions: actions, policy: policy}
}

// Actions returns the configured punch labels.
func (r *Recorder) Actions() []string {
	return r.actions.Labels()
}

func (r *Recorder) notify(s State, err error) {
	if r.OnState != nil {
		r.OnState(s, err)
	}
}

// fail reports the terminal state for err and returns it.
func (r *Recorder) fail(err error) error {
	if _, ok := err.(*types.NoMatchError); ok {
		r.notify(StateRejected, err)
	} else {
		r.notify(StateFailed, err)
	}
	r.notify(StateIdle, nil)
	return err
}

// RecordPunch identifies the face in img and, on a match within threshold, appends an event.
// Nothing is written unless the face matched.
func (r *Recorder) RecordPunch(ctx context.Context, img []byte, action string, threshold float64) (types.AttendanceEvent, error) {
	label, err := r.actions.Resolve(action)
	if err != nil {
		return types.AttendanceEvent{}, r.fail(err)
	}

	res, err := r.identify(ctx, img, threshold)
	if err != nil {
		return types.AttendanceEvent{}, r.fail(err)
	}
	if !res.Matched {
		return types.AttendanceEvent{}, r.fail(&types.NoMatchError{Distance: res.Distance})
	}

	r.notify(StateRecording, nil)
	id := res.Entry.Identity
	ev, err := r.ledger.Append(ctx, id.UniqueID, id.DisplayName, label, res.Confidence)
	if err != nil {
		return types.AttendanceEvent{}, r.fail(err)
	}
	r.notify(StateDone, nil)
	r.notify(StateIdle, nil)
	return ev, nil
}

// RecordPunchFromSource grabs a frame from src and records it.
func (r *Recorder) RecordPunchFromSource(ctx context.Context, src ImageSource, action string, threshold float64) (types.AttendanceEvent, error) {
	r.notify(StateCapturing, nil)
	img, err := frame(ctx, src)
	if err != nil {
		return types.AttendanceEvent{}, r.fail(err)
	}
	return r.RecordPunch(ctx, img, action, threshold)
}

// Identify matches the face in img without recording anything.
// A face that does not match is reported through MatchResult, not as an error.
func (r *Recorder) Identify(ctx context.Context, img []byte, threshold float64) (types.MatchResult, error) {
	return r.identify(ctx, img, threshold)
}

func (r *Recorder) identify(ctx context.Context, img []byte, threshold float64) (types.MatchResult, error) {
	// 0 accepts exact matches only
	if threshold < 0 || math.IsNaN(threshold) || math.IsInf(threshold, 0) {
		return types.MatchResult{}, types.Invalid("threshold", "must be a non-negative number, got %g", threshold)
	}

	gallery, err := r.cache.Snapshot()
	if err != nil {
		return types.MatchResult{}, err
	}
	if len(gallery) == 0 {
		return types.MatchResult{}, types.ErrNoEnrollments
	}

	r.notify(StateExtracting, nil)
	face, err := extractOne(ctx, r.extractor, r.policy, img)
	if err != nil {
		return types.MatchResult{}, err
	}

	r.notify(StateMatching, nil)
	return match.FindBestMatch(face.Signature, gallery, threshold)
}
