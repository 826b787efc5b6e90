package buddy

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

// OrderForSize returns the order of the smallest block that can hold size bytes. Requests
// smaller than a page are promoted to MinOrder. The result may exceed MaxOrder.
func (a *Allocator) OrderForSize(size int) int {
	order := memutils.Log2Ceil(size)
	if order < a.config.MinOrder {
		order = a.config.MinOrder
	}
	return order
}

// MayHaveFreeBlock returns true if an Alloc for size bytes would succeed right now
func (a *Allocator) MayHaveFreeBlock(size int) bool {
	if size < 1 {
		return false
	}

	order := a.OrderForSize(size)
	if order > a.config.MaxOrder {
		return false
	}

	return a.findFreeOrder(order) >= 0
}

func (a *Allocator) findFreeOrder(order int) int {
	for i := order; i <= a.config.MaxOrder; i++ {
		if !a.freeList(i).Empty() {
			return i
		}
	}

	return -1
}

// Alloc reserves a block of at least size bytes and returns its offset within the region.
//
// The error wraps ErrInvalidSize if size is less than one, ErrSizeTooLarge if size is larger than
// the region, and ErrExhausted if no free block is large enough.
func (a *Allocator) Alloc(size int) (int, error) {
	if size < 1 {
		return 0, errors.Wrapf(ErrInvalidSize, "requested %d bytes", size)
	}

	order := a.OrderForSize(size)
	if order > a.config.MaxOrder {
		return 0, errors.Wrapf(ErrSizeTooLarge, "requested %d bytes from a region of %d bytes", size, len(a.region))
	}

	freeOrder := a.findFreeOrder(order)
	if freeOrder < 0 {
		return 0, errors.Wrapf(ErrExhausted, "requested %d bytes (order %d)", size, order)
	}

	index := a.freeList(freeOrder).PopFront(a.pages)
	a.claim(index, freeOrder, order)

	memutils.DebugValidate(a)

	return a.pageOffset(index), nil
}

// claim takes ownership of the block headed by index, which has already been removed from the
// free list for freeOrder, and splits off upper halves until it is the requested order
func (a *Allocator) claim(index int, freeOrder int, order int) {
	offset := a.pageOffset(index)

	for current := freeOrder; current > order; current-- {
		halfOrder := current - 1
		upper := a.pageIndex(buddyOffset(offset, halfOrder))

		a.pages[upper].order = int8(halfOrder)
		a.freeList(halfOrder).PushFront(a.pages, upper)
	}

	blockSize := 1 << order
	memutils.DebugCheckPow2(blockSize, "blockSize")

	a.pages[index].order = int8(order)
	a.allocCount++
	a.allocBytes += blockSize
}
