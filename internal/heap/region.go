package heap

// NewRegion returns a zeroed byte slice suitable for backing a Heap. This is
// the portable default (used by every test and by platforms without an
// mmap-backed implementation); NewMappedRegion in region_unix.go obtains the
// same shape of region from the OS instead of the Go heap.
func NewRegion(size int) []byte {
	return make([]byte, size)
}
