package encryption

import (
	"fmt"
	"os"
	"path/filepath"

	"camlapse/internal/lapse"
)

// EncryptedExt is appended to the name of an encrypted video.
const EncryptedExt = ".age"

// EncryptFile writes an encrypted copy of src to dst. dst appears only once
// fully written.
func EncryptFile(enc lapse.Encryptor, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(out *os.File) error {
		return enc.Encrypt(in, out)
	})
}

// DecryptFile writes the plaintext of the encrypted file src to dst.
func DecryptFile(dc lapse.DecryptionContext, src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	return writeAtomic(dst, func(out *os.File) error {
		return dc.Decrypt(in, out)
	})
}

func writeAtomic(dst string, fill func(*os.File) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
