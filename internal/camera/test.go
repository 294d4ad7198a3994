package camera

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"sync"

	"camlapse/internal/lapse"
)

// TestDevice renders a synthetic JPEG for each capture. Each frame is a
// little brighter than the last so assembled videos visibly change.
type TestDevice struct {
	width, height int

	mu    sync.Mutex
	count int
}

var _ lapse.CaptureDevice = (*TestDevice)(nil)

func NewTestDevice(width, height int) *TestDevice {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 240
	}
	return &TestDevice{width: width, height: height}
}

func (d *TestDevice) Capture(ctx context.Context, destPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	n := d.count
	d.count++
	d.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, d.width, d.height))
	shade := uint8(n * 8 % 256)
	for y := 0; y < d.height; y++ {
		for x := 0; x < d.width; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x % 256), B: uint8(y % 256), A: 255})
		}
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("creating frame: %w", err)
	}
	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 80}); err != nil {
		f.Close()
		os.Remove(destPath)
		return fmt.Errorf("encoding frame: %w", err)
	}
	return f.Close()
}
