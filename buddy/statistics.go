package buddy

import "github.com/vkngwrapper/buddy/memutils"

// AddStatistics sums this region's allocation statistics into stats
func (a *Allocator) AddStatistics(stats *memutils.Statistics) {
	stats.RegionCount++
	stats.RegionBytes += a.Size()
	stats.AllocationCount += a.allocCount
	stats.AllocationBytes += a.allocBytes
}

// AddDetailedStatistics sums this region's allocation statistics into stats. Every block is
// visited, so this is considerably slower than AddStatistics.
func (a *Allocator) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	stats.RegionCount++
	stats.RegionBytes += a.Size()

	a.VisitAllBlocks(func(offset, size int, free bool) bool {
		if free {
			stats.AddFreeBlock(size)
		} else {
			stats.AddAllocation(size)
		}
		return true
	})
}

// VisitAllBlocks calls visit once for each block in the region, free or allocated, in order of
// increasing offset. Iteration stops early if visit returns false.
func (a *Allocator) VisitAllBlocks(visit func(offset, size int, free bool) bool) {
	for offset := 0; offset < len(a.region); {
		page := &a.pages[a.pageIndex(offset)]
		size := 1 << page.order

		if !visit(offset, size, page.link.Linked()) {
			return
		}
		offset += size
	}
}
