// Package heap implements the kernel's byte-addressable heap allocator: a
// single contiguous region managed by an intrusive, address-ordered free
// list with first-fit search and eager coalescing.
//
// The block header is overlaid directly onto the backing region via
// unsafe.Pointer, the way internal/allocator does for the rest of this
// repository's ancestry; prev/next are stored as offsets into the region
// rather than live pointers, so the list survives being backed by a plain
// Go slice or by an mmap'd region (see region_unix.go) without the GC or
// the slice's own bounds getting involved.
package heap

import (
	"sync"
	"unsafe"

	"github.com/kacchi-os/kernel/internal/console"
)

// DefaultAlignment is the payload alignment (spec design value A).
const DefaultAlignment = 8

type blockHeader struct {
	size uint32
	free uint32
	prev uint32
	next uint32
}

const headerSize = uint32(unsafe.Sizeof(blockHeader{}))

// noOffset marks the absence of a neighbor in the intrusive list.
const noOffset = ^uint32(0)

// Stats summarizes the heap's current block population.
type Stats struct {
	Total       uint32
	Used        uint32
	Free        uint32
	FreeBlocks  int
	AllocBlocks int
}

// BlockInfo describes one block for Dump.
type BlockInfo struct {
	Offset uint32
	Size   uint32
	Free   bool
}

// Heap manages one contiguous byte region as a free-list of blocks.
type Heap struct {
	mu          sync.Mutex
	region      []byte
	alignment   uint32
	minBlock    uint32
	head        uint32
	used        uint32
	initialized bool
	con         console.Console
}

// New creates a Heap bound to region. Init must be called before any other
// operation; region is never grown or replaced for the Heap's lifetime.
func New(region []byte, con console.Console) *Heap {
	return &Heap{
		region:    region,
		alignment: DefaultAlignment,
		minBlock:  headerSize + DefaultAlignment,
		con:       con,
	}
}

// Init installs a single free block covering the whole region.
func (h *Heap) Init() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if uint32(len(h.region)) < h.minBlock {
		return
	}

	hdr := h.headerAt(0)
	hdr.size = uint32(len(h.region))
	hdr.free = 1
	hdr.prev = noOffset
	hdr.next = noOffset

	h.head = 0
	h.used = 0
	h.initialized = true

	if h.con != nil {
		console.Diagf(h.con, "MEM", "initialized %d bytes", len(h.region))
	}
}

func (h *Heap) headerAt(off uint32) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(&h.region[off]))
}

func (h *Heap) offsetOf(ptr unsafe.Pointer) uint32 {
	base := uintptr(unsafe.Pointer(&h.region[0]))
	return uint32(uintptr(ptr) - base)
}

func alignUp(n, a uint32) uint32 {
	return (n + a - 1) &^ (a - 1)
}

// Allocate returns a pointer to at least n aligned payload bytes, or nil on
// exhaustion or n == 0.
func (h *Heap) Allocate(n uint32) unsafe.Pointer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized || n == 0 {
		return nil
	}

	req := alignUp(headerSize+n, h.alignment)
	if req < h.minBlock {
		req = h.minBlock
	}

	off := h.head
	for off != noOffset {
		hdr := h.headerAt(off)
		if hdr.free != 0 && hdr.size >= req {
			if hdr.size > req+h.minBlock {
				h.split(off, req)
				hdr = h.headerAt(off)
			}

			hdr.free = 0
			h.used += hdr.size

			return unsafe.Pointer(&h.region[off+headerSize])
		}

		off = hdr.next
	}

	return nil
}

// split carves a new free block out of the tail of the block at off, once
// it is known to be larger than req + minBlock.
func (h *Heap) split(off, req uint32) {
	hdr := h.headerAt(off)

	newOff := off + req
	newHdr := h.headerAt(newOff)
	newHdr.size = hdr.size - req
	newHdr.free = 1
	newHdr.prev = off
	newHdr.next = hdr.next

	if hdr.next != noOffset {
		h.headerAt(hdr.next).prev = newOff
	}

	hdr.next = newOff
	hdr.size = req
}

// Free releases a block previously returned by Allocate or Resize.
// Freeing nil is a no-op; freeing an already-free block is diagnosed and
// otherwise ignored.
func (h *Heap) Free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.initialized {
		return
	}

	off := h.offsetOf(ptr) - headerSize
	hdr := h.headerAt(off)

	if hdr.free != 0 {
		if h.con != nil {
			console.Diagf(h.con, "MEM", "double-free detected at offset %d", off)
		}

		return
	}

	hdr.free = 1
	h.used -= hdr.size

	h.coalesce(off)
}

// coalesce merges the block at off with an immediately following free
// neighbor, then with an immediately preceding free neighbor.
func (h *Heap) coalesce(off uint32) {
	hdr := h.headerAt(off)

	if hdr.next != noOffset {
		next := h.headerAt(hdr.next)
		if next.free != 0 {
			hdr.size += next.size
			hdr.next = next.next

			if next.next != noOffset {
				h.headerAt(next.next).prev = off
			}
		}
	}

	if hdr.prev != noOffset {
		prevOff := hdr.prev
		prev := h.headerAt(prevOff)

		if prev.free != 0 {
			prev.size += hdr.size
			prev.next = hdr.next

			if hdr.next != noOffset {
				h.headerAt(hdr.next).prev = prevOff
			}
		}
	}
}

// Resize grows or shrinks an allocation. A nil pointer behaves like
// Allocate(n); n == 0 behaves like Free and returns nil. Shrinking never
// splits off the freed tail — the excess capacity stays attached to the
// block until it is freed outright (spec's documented, intentionally
// preserved behavior).
func (h *Heap) Resize(ptr unsafe.Pointer, n uint32) unsafe.Pointer {
	if ptr == nil {
		return h.Allocate(n)
	}

	if n == 0 {
		h.Free(ptr)
		return nil
	}

	h.mu.Lock()
	off := h.offsetOf(ptr) - headerSize
	hdr := h.headerAt(off)
	capacity := hdr.size - headerSize
	h.mu.Unlock()

	if n <= capacity {
		return ptr
	}

	newPtr := h.Allocate(n)
	if newPtr == nil {
		return nil
	}

	src := unsafe.Slice((*byte)(ptr), capacity)
	dst := unsafe.Slice((*byte)(newPtr), capacity)
	copy(dst, src)

	h.Free(ptr)

	return newPtr
}

// Stats reports aggregate heap bookkeeping.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := Stats{Total: uint32(len(h.region)), Used: h.used}

	off := h.head
	for off != noOffset {
		hdr := h.headerAt(off)
		if hdr.free != 0 {
			s.Free += hdr.size
			s.FreeBlocks++
		} else {
			s.AllocBlocks++
		}

		off = hdr.next
	}

	return s
}

// Dump enumerates every block in list order.
func (h *Heap) Dump() []BlockInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	var blocks []BlockInfo

	off := h.head
	for off != noOffset {
		hdr := h.headerAt(off)
		blocks = append(blocks, BlockInfo{Offset: off, Size: hdr.size, Free: hdr.free != 0})
		off = hdr.next
	}

	return blocks
}
