package buddy

import (
	"fmt"

	"github.com/vkngwrapper/buddy/memutils"
	"github.com/vkngwrapper/buddy/memutils/freelist"
)

// AllocBelow reserves a block of at least size bytes from the free block with the lowest offset
// that begins before limit. It returns false, leaving the allocator untouched, if there is no
// such block or size cannot be satisfied at all.
//
// Unlike Alloc, every free list of a sufficient order is scanned, so this is intended for
// compaction rather than general allocation.
func (a *Allocator) AllocBelow(size int, limit int) (int, bool) {
	if size < 1 {
		return 0, false
	}

	order := a.OrderForSize(size)
	if order > a.config.MaxOrder {
		return 0, false
	}

	bestIndex, bestOrder := freelist.None, 0
	for i := order; i <= a.config.MaxOrder; i++ {
		a.freeList(i).Each(a.pages, func(index int) bool {
			if a.pageOffset(index) >= limit {
				return true
			}

			if bestIndex == freelist.None || index < bestIndex {
				bestIndex, bestOrder = index, i
			}
			return true
		})
	}

	if bestIndex == freelist.None {
		return 0, false
	}

	a.freeList(bestOrder).Remove(a.pages, bestIndex)
	a.claim(bestIndex, bestOrder, order)

	memutils.DebugValidate(a)

	return a.pageOffset(bestIndex), true
}

// Move copies the contents of the allocated block at src into the allocated block at dst. Both
// blocks must be of the same size.
func (a *Allocator) Move(dst int, src int) {
	dstBytes, srcBytes := a.Bytes(dst), a.Bytes(src)
	if len(dstBytes) != len(srcBytes) {
		panic(fmt.Sprintf("cannot move a block of %d bytes into a block of %d bytes", len(srcBytes), len(dstBytes)))
	}

	copy(dstBytes, srcBytes)
}
