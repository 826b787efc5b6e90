package buddy

import (
	"fmt"

	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/freelist"
)

// noOrder is written to every page when the allocator is initialized. Nothing reads it
// back; only block heads carry a meaningful order.
const noOrder int8 = -1

type pageDescriptor struct {
	order int8
	link  freelist.Node
}

type pageTable []pageDescriptor

var _ freelist.Linker = pageTable(nil)

func (t pageTable) Link(index int) *freelist.Node {
	return &t[index].link
}

func (t pageTable) reset() {
	for i := range t {
		t[i].order = noOrder
		t[i].link.Reset()
	}
}

func (a *Allocator) pageIndex(offset int) int {
	return offset >> a.config.MinOrder
}

func (a *Allocator) pageOffset(index int) int {
	return index << a.config.MinOrder
}

// buddyOffset flips the bit that separates a block of the given order from its buddy
func buddyOffset(offset int, order int) int {
	return offset ^ (1 << order)
}

// page resolves a block offset to its head descriptor, panicking on offsets that cannot
// be the head of any block
func (a *Allocator) page(offset int) (int, *pageDescriptor) {
	if offset < 0 || offset >= len(a.region) {
		panic(fmt.Sprintf("offset %d is outside of the region", offset))
	}
	if !memutils.IsAligned(offset, uint(a.config.PageSize())) {
		panic(fmt.Sprintf("offset %d is not aligned to the page size %d", offset, a.config.PageSize()))
	}

	index := a.pageIndex(offset)
	return index, &a.pages[index]
}

func (a *Allocator) freeList(order int) *freelist.List {
	return &a.freeLists[order-a.config.MinOrder]
}
