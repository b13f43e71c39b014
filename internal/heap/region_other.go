//go:build !unix

package heap

import "fmt"

// MappedRegion is unavailable on non-unix targets; NewMappedRegion always
// fails so callers fall back to NewRegion.
type MappedRegion struct{}

func NewMappedRegion(size int) (*MappedRegion, error) {
	return nil, fmt.Errorf("heap: mmap-backed regions are not supported on this platform")
}

func (m *MappedRegion) Bytes() []byte { return nil }

func (m *MappedRegion) Close() error { return nil }
