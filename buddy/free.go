package buddy

import (
	"fmt"

	"github.com/vkngwrapper/buddy/memutils"
)

// Free returns the block at offset to the allocator, merging it with its buddy as many times as
// possible.
//
// offset must have been returned by Alloc and not freed since. Freeing anything else corrupts the
// allocator. Offsets outside the region, off a page boundary, or heading a block that is still in a
// free list panic; other misuse goes undetected.
func (a *Allocator) Free(offset int) {
	index, page := a.page(offset)
	if page.order < 0 || page.link.Linked() {
		panic(fmt.Sprintf("offset %d is not the head of an allocated block", offset))
	}
	order := int(page.order)

	a.allocCount--
	a.allocBytes -= 1 << order

	for order < a.config.MaxOrder {
		buddy := a.pageIndex(buddyOffset(a.pageOffset(index), order))

		list := a.freeList(order)
		if !list.Contains(a.pages, buddy) {
			break
		}

		list.Remove(a.pages, buddy)
		if buddy < index {
			index = buddy
		}
		order++
	}

	a.pages[index].order = int8(order)
	a.freeList(order).PushFront(a.pages, index)

	memutils.DebugValidate(a)
}
