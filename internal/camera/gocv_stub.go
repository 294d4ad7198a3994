//go:build !gocv

package camera

import (
	"context"
	"fmt"

	"camlapse/internal/lapse"
)

// GoCVDevice is unavailable in builds without the gocv tag, since OpenCV
// requires cgo and system libraries.
type GoCVDevice struct{}

var _ lapse.CaptureDevice = (*GoCVDevice)(nil)

func NewGoCVDevice(string, int, int) (*GoCVDevice, error) {
	return nil, fmt.Errorf("gocv capture requires building with -tags gocv")
}

func (*GoCVDevice) Capture(context.Context, string) error {
	return fmt.Errorf("gocv capture requires building with -tags gocv")
}
