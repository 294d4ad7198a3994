package delivery

import (
	"context"
	"fmt"
	"os"

	"camlapse/internal/encryption"
	"camlapse/internal/lapse"
)

// EncryptingChannel age-encrypts a video next to the original and hands the
// encrypted copy to the wrapped channel. The plaintext video stays in the
// archive; the encrypted copy is removed after a successful delivery.
type EncryptingChannel struct {
	inner lapse.DeliveryChannel
	enc   lapse.Encryptor
}

var _ lapse.DeliveryChannel = (*EncryptingChannel)(nil)

func NewEncryptingChannel(inner lapse.DeliveryChannel, enc lapse.Encryptor) *EncryptingChannel {
	return &EncryptingChannel{inner: inner, enc: enc}
}

func (c *EncryptingChannel) Name() string { return c.inner.Name() + "+age" }

func (c *EncryptingChannel) Deliver(ctx context.Context, videoPath string) error {
	if !c.enc.IsConfigured() {
		return fmt.Errorf("encryption keys are not set up")
	}

	encPath := videoPath + encryption.EncryptedExt
	if err := encryption.EncryptFile(c.enc, videoPath, encPath); err != nil {
		return fmt.Errorf("encrypting video: %w", err)
	}

	if err := c.inner.Deliver(ctx, encPath); err != nil {
		return err
	}

	if err := os.Remove(encPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing encrypted copy: %w", err)
	}
	return nil
}
