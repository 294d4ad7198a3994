package camera

import (
	"fmt"

	"camlapse/internal/config"
	"camlapse/internal/lapse"
)

// NewDeviceFromConfig creates a CaptureDevice based on the capture config type.
func NewDeviceFromConfig(cfg config.CaptureConfig) (lapse.CaptureDevice, error) {
	switch cfg.Type {
	case "command", "":
		return NewCommandDevice(cfg.Device, cfg.Command)
	case "gocv":
		return NewGoCVDevice(cfg.Device, cfg.Width, cfg.Height)
	case "test":
		return NewTestDevice(cfg.Width, cfg.Height), nil
	default:
		return nil, fmt.Errorf("unknown capture type: %s", cfg.Type)
	}
}
