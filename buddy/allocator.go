// Package buddy implements a binary buddy allocator over a single fixed-size region.
//
// The region is 2^MaxOrder bytes and is carved into blocks whose sizes are powers of two between
// 2^MinOrder (one page) and 2^MaxOrder. Allocation splits the smallest sufficient free block in half
// repeatedly until it matches the request, and freeing merges a block with its buddy for as long as
// the buddy is also free. All bookkeeping lives in a page table and a set of per-order free lists
// held outside of the region, so the managed memory never carries headers.
//
// An Allocator is not safe for concurrent use. Wrap every call in a single lock, or use the
// allocator package, if more than one goroutine needs access.
package buddy

import (
	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/freelist"
)

// Allocator hands out offsets into its region. Offsets returned from Alloc are aligned to the
// size of the block they head.
type Allocator struct {
	config Config

	region    []byte
	pages     pageTable
	freeLists []freelist.List

	allocCount int
	allocBytes int
}

var _ memutils.Validatable = &Allocator{}

// New creates an Allocator for the provided configuration and initializes it so that the whole
// region is a single free block. The region is not zeroed.
func New(config Config) (*Allocator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	a := &Allocator{
		config:    config,
		region:    dirtmake.Bytes(config.RegionSize(), config.RegionSize()),
		pages:     make(pageTable, config.PageCount()),
		freeLists: make([]freelist.List, config.OrderCount()),
	}
	a.Init()

	return a, nil
}

// Init returns the allocator to its initial state: every page is unowned and the region is one
// free block of MaxOrder. Any outstanding allocations are discarded. The contents of the region
// are left untouched.
func (a *Allocator) Init() {
	a.pages.reset()
	for i := range a.freeLists {
		a.freeLists[i].Init()
	}

	a.pages[0].order = int8(a.config.MaxOrder)
	a.freeList(a.config.MaxOrder).PushFront(a.pages, 0)

	a.allocCount = 0
	a.allocBytes = 0
}

// Config returns the configuration the allocator was created with
func (a *Allocator) Config() Config { return a.config }

// Size returns the size of the region in bytes
func (a *Allocator) Size() int { return len(a.region) }

// Bytes returns the memory belonging to the allocated block at offset. The slice aliases the
// region and is only meaningful until the block is freed.
func (a *Allocator) Bytes(offset int) []byte {
	size := a.BlockSize(offset)
	return a.region[offset : offset+size : offset+size]
}

// BlockSize returns the size in bytes of the allocated block at offset
func (a *Allocator) BlockSize(offset int) int {
	_, page := a.page(offset)
	if page.order < 0 {
		panic("offset does not head a block")
	}
	return 1 << page.order
}

// AllocationCount returns the number of live allocations
func (a *Allocator) AllocationCount() int {
	return a.allocCount
}

// SumFreeSize returns the number of bytes not covered by a live allocation
func (a *Allocator) SumFreeSize() int {
	return len(a.region) - a.allocBytes
}

// IsEmpty returns true if there are no live allocations
func (a *Allocator) IsEmpty() bool {
	return a.allocCount == 0
}
