//go:build gocv

package camera

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"gocv.io/x/gocv"

	"camlapse/internal/lapse"
)

// GoCVDevice grabs frames from a V4L2/AVFoundation camera through OpenCV.
// The capture handle is opened per frame so the camera is free between ticks.
type GoCVDevice struct {
	device        string
	width, height int

	mu sync.Mutex
}

var _ lapse.CaptureDevice = (*GoCVDevice)(nil)

func NewGoCVDevice(device string, width, height int) (*GoCVDevice, error) {
	return &GoCVDevice{device: device, width: width, height: height}, nil
}

// warmupFrames are discarded so auto exposure can settle.
const warmupFrames = 5

func (d *GoCVDevice) Capture(ctx context.Context, destPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		webcam *gocv.VideoCapture
		err    error
	)
	if id, convErr := strconv.Atoi(d.device); convErr == nil || d.device == "" {
		webcam, err = gocv.OpenVideoCapture(id)
	} else {
		webcam, err = gocv.OpenVideoCapture(d.device)
	}
	if err != nil {
		return fmt.Errorf("failed to open webcam: %w", err)
	}
	defer webcam.Close()

	if d.width > 0 && d.height > 0 {
		webcam.Set(gocv.VideoCaptureFrameWidth, float64(d.width))
		webcam.Set(gocv.VideoCaptureFrameHeight, float64(d.height))
	}

	img := gocv.NewMat()
	defer img.Close()

	for i := 0; i <= warmupFrames; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ok := webcam.Read(&img); !ok {
			return fmt.Errorf("failed to read from webcam %s", d.device)
		}
	}
	if img.Empty() {
		return fmt.Errorf("webcam %s returned an empty frame", d.device)
	}

	if ok := gocv.IMWrite(destPath, img); !ok {
		return fmt.Errorf("failed to write frame to %s", destPath)
	}
	return nil
}
