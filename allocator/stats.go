package allocator

import (
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/buddy/memutils"
	"golang.org/x/exp/slices"
)

// BuildStatsString returns a JSON document describing the allocator: overall statistics, the
// free lists of the region and, if detailed is true, every live allocation in offset order.
func (a *Allocator) BuildStatsString(detailed bool) string {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.DetailedStatistics
	stats.Clear()
	a.metadata.AddDetailedStatistics(&stats)

	writer := jwriter.NewWriter()
	root := writer.Object()

	total := root.Name("Total").Object()
	total.Name("RegionBytes").Int(stats.RegionBytes)
	total.Name("AllocationCount").Int(stats.AllocationCount)
	total.Name("AllocationBytes").Int(stats.AllocationBytes)
	total.Name("FreeBlockCount").Int(stats.FreeBlockCount)
	total.Name("FreeBytes").Int(stats.FreeBytes())
	if stats.AllocationCount > 0 {
		total.Name("AllocationSizeMin").Int(stats.AllocationSizeMin)
		total.Name("AllocationSizeMax").Int(stats.AllocationSizeMax)
	}
	if stats.FreeBlockCount > 0 {
		total.Name("FreeBlockSizeMin").Int(stats.FreeBlockSizeMin)
		total.Name("FreeBlockSizeMax").Int(stats.FreeBlockSizeMax)
	}
	total.Name("ExternalFragmentation").Float64(stats.ExternalFragmentation())
	total.End()

	region := root.Name("Region").Object()
	a.metadata.BlockJsonData(region)
	region.End()

	if detailed {
		allocations := make([]*Allocation, 0, a.live.Count())
		a.live.Iter(func(offset int, alloc *Allocation) bool {
			allocations = append(allocations, alloc)
			return false
		})
		slices.SortFunc(allocations, func(left, right *Allocation) int {
			return left.offset - right.offset
		})

		list := root.Name("Allocations").Array()
		for _, alloc := range allocations {
			obj := list.Object()
			alloc.printParameters(&obj)
			obj.End()
		}
		list.End()
	}

	root.End()
	return string(writer.Bytes())
}
