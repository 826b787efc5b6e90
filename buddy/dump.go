package buddy

import (
	"fmt"
	"io"
	"strings"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// OrderCount describes the free list for a single order
type OrderCount struct {
	Order      int
	BlockSize  int
	FreeBlocks int
}

// FreeBlockCounts returns the number of free blocks at each order from MinOrder to MaxOrder
func (a *Allocator) FreeBlockCounts() []OrderCount {
	counts := make([]OrderCount, 0, a.config.OrderCount())
	for order := a.config.MinOrder; order <= a.config.MaxOrder; order++ {
		counts = append(counts, OrderCount{
			Order:      order,
			BlockSize:  1 << order,
			FreeBlocks: a.freeList(order).Len(),
		})
	}
	return counts
}

// Dump writes the free block count for every order on a single line, as "count:size" pairs
// separated by spaces. Sizes are in kibibytes ("4K") unless the page size is below 1KiB, in
// which case every size is in bytes ("64B").
func (a *Allocator) Dump(w io.Writer) error {
	divisor, unit := 1024, "K"
	if a.config.PageSize() < 1024 {
		divisor, unit = 1, "B"
	}

	var line strings.Builder
	for _, count := range a.FreeBlockCounts() {
		fmt.Fprintf(&line, "%d:%d%s ", count.FreeBlocks, count.BlockSize/divisor, unit)
	}
	line.WriteByte('\n')

	_, err := io.WriteString(w, line.String())
	return err
}

// BlockJsonData populates a json object with information about the region and its free lists
func (a *Allocator) BlockJsonData(json jwriter.ObjectState) {
	json.Name("TotalBytes").Int(a.Size())
	json.Name("UnusedBytes").Int(a.SumFreeSize())
	json.Name("Allocations").Int(a.AllocationCount())
	json.Name("MinOrder").Int(a.config.MinOrder)
	json.Name("MaxOrder").Int(a.config.MaxOrder)

	freeLists := json.Name("FreeLists").Array()
	for _, count := range a.FreeBlockCounts() {
		entry := freeLists.Object()
		entry.Name("Order").Int(count.Order)
		entry.Name("BlockSize").Int(count.BlockSize)
		entry.Name("FreeBlocks").Int(count.FreeBlocks)
		entry.End()
	}
	freeLists.End()
}
