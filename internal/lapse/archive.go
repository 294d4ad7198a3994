package lapse

// ArchiveStore manages bucket directories and the frames inside them.
//
// Layout:
//
//	<root>/
//	  photos/<bucketID>/frame-<timestamp>.<ext>
//	  videos/<bucketID>.<ext>
type ArchiveStore interface {
	// EnsureBucket materializes the bucket if it does not exist yet and
	// reports whether this call created it. Concurrent calls for the same
	// bucket report created=true at most once.
	EnsureBucket(bucketID string) (created bool, err error)

	// Exists reports whether the bucket has been materialized.
	Exists(bucketID string) bool

	// ListMembers returns the bucket's frame paths in capture order.
	// A bucket that was never created yields an empty slice, not an error.
	ListMembers(bucketID string) ([]string, error)

	// ListBuckets returns all bucket identifiers in chronological order.
	ListBuckets() ([]string, error)

	// FramePath returns the destination path for a frame file in a bucket.
	FramePath(bucketID, frameName string) string

	// VideoPath returns the path of the assembled video for a bucket.
	VideoPath(bucketID, ext string) string
}
