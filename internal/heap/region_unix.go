//go:build unix

package heap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MappedRegion is a heap backing region obtained from an anonymous mmap
// instead of the Go allocator, so the "physical memory" a Heap manages is
// real OS-backed memory rather than a slice borrowed from the host
// process's own GC heap.
type MappedRegion struct {
	data []byte
}

// NewMappedRegion allocates size bytes via mmap(MAP_ANONYMOUS|MAP_PRIVATE).
func NewMappedRegion(size int) (*MappedRegion, error) {
	if size <= 0 {
		return nil, fmt.Errorf("heap: mapped region size must be positive, got %d", size)
	}

	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("heap: mmap failed: %w", err)
	}

	return &MappedRegion{data: data}, nil
}

// Bytes returns the backing slice for use with heap.New.
func (m *MappedRegion) Bytes() []byte {
	return m.data
}

// Close releases the mapping. It must not be called while a Heap built on
// top of the region is still in use.
func (m *MappedRegion) Close() error {
	if m.data == nil {
		return nil
	}

	err := unix.Munmap(m.data)
	m.data = nil

	return err
}
