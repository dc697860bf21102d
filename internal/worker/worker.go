// Package worker talks to the Python face extractor over a length-prefixed pipe protocol.
package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/andresmejia3/facepunch/internal/utils" // Using the SafeCommand wrapper
)

const (
	statusOK    = 0
	statusError = 1

	// maxDim bounds the signature length accepted from the worker.
	maxDim = 4096
	// maxResponse bounds a single response frame.
	maxResponse = 64 << 20
	// minFaceSize is the encoded size of a face before its signature: box and dimension.
	minFaceSize = 4*4 + 4
)

// ErrWorkerStopped is returned once the worker has been closed, or killed with no way to restart it.
var ErrWorkerStopped = errors.New("python worker stopped")

// Config controls how the extractor process is launched.
type Config struct {
	Python  string
	Script  string
	Timeout time.Duration
}

// startFunc launches a fresh extractor process.
type startFunc func() (*utils.SafeCommand, io.WriteCloser, io.ReadCloser, error)

// PythonWorker owns one extractor process. Requests are strictly request/response,
// so Extract serializes callers. A process killed after a timeout, cancellation or
// protocol failure is replaced on the next request.
type PythonWorker struct {
	ID       int
	Cmd      *utils.SafeCommand
	Stdin    io.WriteCloser
	DataPipe io.ReadCloser
	Timeout  time.Duration

	mu      sync.Mutex
	start   startFunc
	broken  bool
	stopped bool
}

func NewPythonWorker(ctx context.Context, id int, cfg Config) (*PythonWorker, error) {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.Script == "" {
		cfg.Script = "python/worker.py"
	}
	if _, err := os.Stat(cfg.Script); err != nil {
		return nil, fmt.Errorf("worker script %s: %w", cfg.Script, err)
	}

	start := func() (*utils.SafeCommand, io.WriteCloser, io.ReadCloser, error) {
		return startProcess(ctx, id, cfg)
	}
	py, stdin, data, err := start()
	if err != nil {
		return nil, err
	}

	return &PythonWorker{
		ID:       id,
		Cmd:      py,
		Stdin:    stdin,
		DataPipe: data,
		Timeout:  cfg.Timeout,
		start:    start,
	}, nil
}

func startProcess(ctx context.Context, id int, cfg Config) (*utils.SafeCommand, io.WriteCloser, io.ReadCloser, error) {
	py := utils.NewSafeCommand(ctx, cfg.Python, "-u", cfg.Script)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	// Pass the write-end to the child process. It will appear as FD 3.
	py.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := py.StdinPipe()
	if err != nil {
		w.Close() // Prevent FD leak
		r.Close()
		return nil, nil, nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := py.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, nil, nil, fmt.Errorf("worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()
	return py, stdin, r, nil
}

// Communicate sends one request and returns the raw response payload.
func (w *PythonWorker) Communicate(data []byte) ([]byte, error) {
	// Protocol: [Length][Data]
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(w.DataPipe, header); err != nil {
		return nil, err // This is where we catch the "ModuleNotFoundError" crash
	}

	respLen := binary.BigEndian.Uint32(header)
	if respLen > maxResponse {
		return nil, fmt.Errorf("response of %d bytes exceeds the %d byte limit", respLen, maxResponse)
	}
	respBody := make([]byte, respLen)
	_, err := io.ReadFull(w.DataPipe, respBody)
	return respBody, err
}

// Extract returns every face found in img, in the order the extractor reports them.
// An image with no face yields an empty slice, not an error.
func (w *PythonWorker) Extract(ctx context.Context, img []byte) ([]types.Face, error) {
	if len(img) == 0 {
		return nil, types.Invalid("image", "must not be empty")
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil, ErrWorkerStopped
	}
	if w.broken {
		if err := w.restart(); err != nil {
			return nil, err
		}
	}

	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		body, err := w.Communicate(img)
		done <- reply{body, err}
	}()

	var timeout <-chan time.Time
	if w.Timeout > 0 {
		t := time.NewTimer(w.Timeout)
		defer t.Stop()
		timeout = t.C
	}

	// Any exit other than a complete reply leaves the pipe out of sync,
	// so the process is killed and replaced on the next request.
	select {
	case r := <-done:
		if r.err != nil {
			w.kill()
			return nil, fmt.Errorf("worker %d: %w", w.ID, r.err)
		}
		return decodeFaces(r.body)
	case <-ctx.Done():
		w.kill()
		<-done
		return nil, ctx.Err()
	case <-timeout:
		w.kill()
		<-done
		return nil, fmt.Errorf("worker %d: no response after %s", w.ID, w.Timeout)
	}
}

// restart replaces a killed process. Callers hold mu.
func (w *PythonWorker) restart() error {
	if w.start == nil {
		return ErrWorkerStopped
	}
	cmd, stdin, data, err := w.start()
	if err != nil {
		return fmt.Errorf("worker %d: restart: %w", w.ID, err)
	}
	w.Cmd, w.Stdin, w.DataPipe = cmd, stdin, data
	w.broken = false
	log.Printf("worker %d: extractor restarted", w.ID)
	return nil
}

// kill stops the process and unblocks any pending read. Callers hold mu.
func (w *PythonWorker) kill() {
	w.broken = true
	if w.Cmd != nil && w.Cmd.Process != nil {
		if err := w.Cmd.Process.Kill(); err != nil {
			log.Printf("worker %d: kill: %v", w.ID, err)
		}
		go w.Cmd.Wait()
	}
	w.Stdin.Close()
	w.DataPipe.Close()
}

// Close shuts the worker down and waits for the process to exit.
func (w *PythonWorker) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	if w.broken {
		// kill already closed the pipes and reaps the process
		return
	}
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd != nil {
		w.Cmd.Wait()
	}
}

// decodeFaces parses a response payload.
// Status 0: [u32 n] then n × ([4]i32 box, u32 dim, dim × f32). Status 1: [u32 len][message].
func decodeFaces(payload []byte) ([]types.Face, error) {
	r := bytes.NewReader(payload)

	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty worker response")
	}

	switch status {
	case statusOK:
	case statusError:
		var msgLen uint32
		if err := binary.Read(r, binary.BigEndian, &msgLen); err != nil {
			return nil, fmt.Errorf("truncated worker error: %w", err)
		}
		if int(msgLen) > r.Len() {
			return nil, fmt.Errorf("truncated worker error message")
		}
		msg := make([]byte, msgLen)
		io.ReadFull(r, msg)
		return nil, fmt.Errorf("python worker error: %s", msg)
	default:
		return nil, fmt.Errorf("unknown worker status %d", status)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("reading face count: %w", err)
	}

	if uint64(n)*minFaceSize > uint64(r.Len()) {
		return nil, fmt.Errorf("face count %d exceeds payload", n)
	}

	faces := make([]types.Face, 0, n)
	for i := uint32(0); i < n; i++ {
		var box [4]int32
		if err := binary.Read(r, binary.BigEndian, &box); err != nil {
			return nil, fmt.Errorf("face %d: reading box: %w", i, err)
		}

		var dim uint32
		if err := binary.Read(r, binary.BigEndian, &dim); err != nil {
			return nil, fmt.Errorf("face %d: reading dimension: %w", i, err)
		}
		if dim == 0 || dim > maxDim {
			return nil, fmt.Errorf("face %d: invalid signature dimension %d", i, dim)
		}
		if int(dim)*4 > r.Len() {
			return nil, fmt.Errorf("face %d: truncated signature", i)
		}

		raw := make([]float32, dim)
		if err := binary.Read(r, binary.BigEndian, raw); err != nil {
			return nil, fmt.Errorf("face %d: reading signature: %w", i, err)
		}
		sig := make(types.Signature, dim)
		for j, v := range raw {
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return nil, fmt.Errorf("face %d: non-finite signature value", i)
			}
			sig[j] = float64(v)
		}

		faces = append(faces, types.Face{
			Signature: sig,
			Location: types.Location{
				Top:    int(box[0]),
				Right:  int(box[1]),
				Bottom: int(box[2]),
				Left:   int(box[3]),
			},
		})
	}
	return faces, nil
}
