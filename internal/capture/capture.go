// Package capture produces still images for enrollment and punches.
package capture

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"time"

	"github.com/andresmejia3/facepunch/internal/types"
	"github.com/andresmejia3/facepunch/internal/utils"
	"golang.org/x/image/draw"
)

// DefaultScale is the factor camera frames are shrunk by before extraction.
const DefaultScale = 0.6

// FileSource reads an image from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Frame(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrImageUnavailable, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", types.ErrImageUnavailable, f.Path)
	}
	return data, nil
}

// CameraSource grabs one frame from a capture device through ffmpeg.
type CameraSource struct {
	Device  string
	Scale   float64
	Timeout time.Duration

	grab func(ctx context.Context, device string) ([]byte, error)
}

func NewCameraSource(device string, scale float64, timeout time.Duration) *CameraSource {
	return &CameraSource{Device: device, Scale: scale, Timeout: timeout, grab: grabFFmpeg}
}

// Frame returns a JPEG of the current camera image, downscaled by Scale.
func (c *CameraSource) Frame(ctx context.Context) ([]byte, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	grab := c.grab
	if grab == nil {
		grab = grabFFmpeg
	}
	raw, err := grab(ctx, c.Device)
	if err != nil {
		return nil, fmt.Errorf("%w: camera %s: %v", types.ErrImageUnavailable, c.Device, err)
	}

	scale := c.Scale
	if scale == 0 {
		scale = DefaultScale
	}
	out, err := Downscale(raw, scale)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrImageUnavailable, err)
	}
	return out, nil
}

func grabFFmpeg(ctx context.Context, device string) ([]byte, error) {
	cmd := utils.NewFFmpegFrameCmd(ctx, device)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if err != nil {
		if stderr.Len() > 0 {
			return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
		}
		return nil, fmt.Errorf("ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 1024*1024), 32*1024*1024)
	scanner.Split(utils.SplitJpeg)
	if !scanner.Scan() {
		return nil, fmt.Errorf("ffmpeg produced no frame")
	}
	return scanner.Bytes(), nil
}

// Downscale decodes img, resizes it by scale and re-encodes it as JPEG.
// A scale of 1 returns img unchanged.
func Downscale(img []byte, scale float64) ([]byte, error) {
	if scale <= 0 || scale > 1 {
		return nil, types.Invalid("capture_scale", "must be in (0, 1], got %g", scale)
	}
	if scale == 1 {
		return img, nil
	}

	src, _, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
