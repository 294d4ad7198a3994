package encoder

import (
	"fmt"

	"camlapse/internal/config"
	"camlapse/internal/lapse"
)

// NewEncoderFromConfig creates an Encoder for the video config. The only
// backend is ffmpeg; "codec" selects the ffmpeg video codec.
func NewEncoderFromConfig(cfg config.VideoConfig, tempDir string) (lapse.Encoder, error) {
	if cfg.FrameRate <= 0 {
		return nil, fmt.Errorf("video frame_rate must be positive, got %d", cfg.FrameRate)
	}
	return NewFFmpegEncoder(cfg.Codec, tempDir), nil
}
