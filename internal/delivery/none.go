package delivery

import (
	"context"
	"fmt"
	"os"

	"camlapse/internal/lapse"
)

// NoneChannel keeps videos on the device only. Deliver just checks that the
// video exists.
type NoneChannel struct{}

var _ lapse.DeliveryChannel = NoneChannel{}

func (NoneChannel) Name() string { return "none" }

func (NoneChannel) Deliver(_ context.Context, videoPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video not found: %w", err)
	}
	return nil
}
