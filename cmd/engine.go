package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/andresmejia3/facepunch/internal/attendance"
	"github.com/andresmejia3/facepunch/internal/capture"
	"github.com/andresmejia3/facepunch/internal/style"
	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/andresmejia3/facepunch/internal/utils"
	"github.com/andresmejia3/facepunch/internal/worker"
)

// engine bundles the extractor process and the services built on it.
type engine struct {
	worker   *worker.PythonWorker
	cache    *attendance.Cache
	enroller *attendance.Enroller
	recorder *attendance.Recorder
}

func startEngine(ctx context.Context) (*engine, error) {
	timeout, err := Cfg.Timeout()
	if err != nil {
		return nil, err
	}
	actions, err := attendance.NewActionSet(Cfg.Actions)
	if err != nil {
		return nil, err
	}
	policy, err := attendance.ParseFacePolicy(Cfg.FacePolicy)
	if err != nil {
		return nil, err
	}

	// We use ID 0 for the single extractor process
	w, err := worker.NewPythonWorker(ctx, 0, worker.Config{
		Python:  Cfg.Python,
		Script:  Cfg.WorkerScript,
		Timeout: timeout,
	})
	if err != nil {
		utils.ShowError("Failed to start face extractor", err, nil)
		return nil, err
	}

	cache := attendance.NewCache(Gallery)
	return &engine{
		worker:   w,
		cache:    cache,
		enroller: attendance.NewEnroller(w, Gallery, cache, policy),
		recorder: attendance.NewRecorder(w, cache, DB, actions, policy),
	}, nil
}

func (e *engine) Close() {
	e.worker.Close()
}

// imageSource picks the frame source from the --image / --camera flags.
func imageSource(imagePath string, camera bool) (attendance.ImageSource, error) {
	switch {
	case imagePath != "" && camera:
		return nil, fmt.Errorf("use either --image or --camera, not both")
	case imagePath != "":
		return capture.FileSource{Path: imagePath}, nil
	case camera:
		timeout, err := Cfg.Timeout()
		if err != nil {
			return nil, err
		}
		return capture.NewCameraSource(Cfg.CameraDevice, Cfg.CaptureScale, timeout), nil
	default:
		return nil, fmt.Errorf("an image is required: pass --image <path> or --camera")
	}
}

// describeError turns an engine error into a message for the operator.
func describeError(err error) string {
	var (
		nm *types.NoMatchError
		ve *types.ValidationError
		se *types.StorageError
	)
	switch {
	case errors.Is(err, types.ErrNoFaceDetected):
		return "No face detected. Look at the camera and try again."
	case errors.As(err, &nm):
		return fmt.Sprintf("Face not recognized (distance %.3f).", nm.Distance)
	case errors.Is(err, types.ErrNoEnrollments):
		return "Nobody is enrolled yet. Enroll an employee first."
	case errors.Is(err, types.ErrImageUnavailable):
		return fmt.Sprintf("Could not get an image: %v", err)
	case errors.As(err, &ve):
		return fmt.Sprintf("Invalid %s: %s", ve.Field, ve.Reason)
	case errors.As(err, &se):
		return fmt.Sprintf("Storage failure while trying to %s. Nothing was recorded.", se.Op)
	default:
		return fmt.Sprintf("Unexpected error: %v", err)
	}
}

// statusPrinter renders recorder state transitions as kiosk status lines.
func statusPrinter(out io.Writer) attendance.StateObserver {
	return func(state attendance.State, err error) {
		switch state {
		case attendance.StateCapturing:
			fmt.Fprintln(out, style.ArrowPrefix, style.Info.Render("📷 Capturing..."))
		case attendance.StateExtracting:
			fmt.Fprintln(out, style.ArrowPrefix, style.Info.Render("🔍 Analyzing face..."))
		case attendance.StateMatching:
			fmt.Fprintln(out, style.ArrowPrefix, style.Info.Render("🗄️  Matching against the gallery..."))
		case attendance.StateRecording:
			fmt.Fprintln(out, style.ArrowPrefix, style.Info.Render("📝 Recording..."))
		case attendance.StateRejected:
			fmt.Fprintln(out, style.WarningPrefix, style.Warning.Render(describeError(err)))
		case attendance.StateFailed:
			fmt.Fprintln(out, style.ErrorPrefix, style.Error.Render(describeError(err)))
		}
	}
}
