package lapse

import "io"

// Encryptor handles encryption of videos before they leave the device.
type Encryptor interface {
	// Setup generates a key pair and protects the private key with passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w using the public key.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock decrypts the private key and returns a context for decryption.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether key material is present.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
