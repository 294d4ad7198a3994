package delivery

import (
	"context"
	"fmt"

	"camlapse/internal/config"
	"camlapse/internal/lapse"
)

// NewChannelFromConfig creates a DeliveryChannel based on the delivery config type.
// enc is required only when cfg.Encrypt is set.
func NewChannelFromConfig(ctx context.Context, cfg config.DeliveryConfig, enc lapse.Encryptor) (lapse.DeliveryChannel, error) {
	ch, err := newChannel(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Encrypt {
		return ch, nil
	}
	if enc == nil {
		return nil, fmt.Errorf("encrypted delivery requires an encryptor")
	}
	return NewEncryptingChannel(ch, enc), nil
}

func newChannel(ctx context.Context, cfg config.DeliveryConfig) (lapse.DeliveryChannel, error) {
	switch cfg.Type {
	case "none", "":
		return NoneChannel{}, nil
	case "memory":
		return NewMemoryChannel(), nil
	case "filesystem":
		if cfg.FSRoot == "" {
			return nil, fmt.Errorf("filesystem delivery requires fs_root to be set")
		}
		return NewFileSystemChannel(cfg.FSRoot)
	case "telegram":
		return NewTelegramChannel(cfg.TelegramAPIURL, cfg.TelegramToken, cfg.TelegramChatID)
	case "s3":
		return NewS3Channel(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.S3Region)
	default:
		return nil, fmt.Errorf("unknown delivery type: %s", cfg.Type)
	}
}
