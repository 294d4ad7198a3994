package lapse

import "fmt"

// CaptureError reports a failed device capture. The tick is skipped and the
// schedule continues.
type CaptureError struct {
	BucketID string
	Path     string
	Err      error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capturing frame %s: %v", e.Path, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// EncodeError reports a failed video assembly. Source frames are preserved.
type EncodeError struct {
	BucketID string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding bucket %s: %v", e.BucketID, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// DeliveryError reports a failed hand-off of a finished video. The video file
// is preserved for a manual retry.
type DeliveryError struct {
	BucketID  string
	VideoPath string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering %s: %v", e.VideoPath, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// StorageError reports an archive failure. It is fatal for the current tick only.
type StorageError struct {
	BucketID string
	Op       string
	Err      error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s bucket %s: %v", e.Op, e.BucketID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
