package lapse

import "context"

// CaptureDevice takes one still image.
type CaptureDevice interface {
	// Capture writes exactly one image file at destPath or returns an error.
	Capture(ctx context.Context, destPath string) error
}

// Encoder assembles an ordered set of frames into a single video file.
type Encoder interface {
	// Encode blocks until outputPath is written or the encoder fails.
	Encode(ctx context.Context, framePaths []string, frameRate int, outputPath string) error
}

// DeliveryChannel transmits a finished video somewhere outside the device.
type DeliveryChannel interface {
	Deliver(ctx context.Context, videoPath string) error
	Name() string
}
