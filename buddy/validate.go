package buddy

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils"
)

// Validate performs internal consistency checks on the page table and free lists. It walks every
// block in the region and every free list, so it is expensive. When the allocator is used
// correctly it should not be possible for this method to return an error.
func (a *Allocator) Validate() error {
	var freeCount, allocCount, allocBytes int

	for offset := 0; offset < len(a.region); {
		index := a.pageIndex(offset)
		page := &a.pages[index]
		order := int(page.order)

		if order < a.config.MinOrder || order > a.config.MaxOrder {
			return errors.Newf("block at offset %d has invalid order %d", offset, order)
		}

		size := 1 << order
		if !memutils.IsAligned(offset, uint(size)) {
			return errors.Newf("block at offset %d is not aligned to its size %d", offset, size)
		}
		if offset+size > len(a.region) {
			return errors.Newf("block at offset %d with size %d runs past the end of the region", offset, size)
		}

		for interior := index + 1; interior < a.pageIndex(offset+size); interior++ {
			if a.pages[interior].link.Linked() {
				return errors.Newf("page %d is inside the block at offset %d but is linked into a free list", interior, offset)
			}
		}

		if page.link.Linked() {
			if !a.freeList(order).Contains(a.pages, index) {
				return errors.Newf("free block at offset %d is not in the free list for order %d", offset, order)
			}

			if order < a.config.MaxOrder {
				buddy := &a.pages[a.pageIndex(buddyOffset(offset, order))]
				if buddy.link.Linked() && int(buddy.order) == order {
					return errors.Newf("free block at offset %d and its buddy at offset %d were not merged", offset, buddyOffset(offset, order))
				}
			}

			freeCount++
		} else {
			allocCount++
			allocBytes += size
		}

		offset += size
	}

	var listedCount int
	for order := a.config.MinOrder; order <= a.config.MaxOrder; order++ {
		list := a.freeList(order)

		var walked int
		list.Each(a.pages, func(index int) bool {
			walked++
			return true
		})
		if walked != list.Len() {
			return errors.Newf("free list for order %d holds %d blocks but reports a length of %d", order, walked, list.Len())
		}

		listedCount += walked
	}

	if listedCount != freeCount {
		return errors.Newf("the free lists hold %d blocks, but only %d free blocks were found in the region", listedCount, freeCount)
	}

	if allocCount != a.allocCount {
		return errors.Newf("the allocation count is %d, but the allocated blocks only added up to %d", a.allocCount, allocCount)
	}

	if allocBytes != a.allocBytes {
		return errors.Newf("the allocated size is %d, but the allocated blocks only added up to %d", a.allocBytes, allocBytes)
	}

	return nil
}
