package defrag

import (
	"fmt"
	"math"
)

// CounterStatus is the verdict of PassContext.CheckCounters on a candidate relocation
type CounterStatus uint32

const (
	// CounterPass means the relocation fits within the pass budget
	CounterPass CounterStatus = iota
	// CounterIgnore means the relocation should be skipped, but smaller ones may still fit
	CounterIgnore
	// CounterEnd means the pass should stop collecting relocations
	CounterEnd
)

var counterStatusMapping = map[CounterStatus]string{
	CounterPass:   "CounterPass",
	CounterIgnore: "CounterIgnore",
	CounterEnd:    "CounterEnd",
}

func (s CounterStatus) String() string {
	return counterStatusMapping[s]
}

// maxIgnoredAllocs is the number of consecutive over-budget candidates after which a pass gives up
const maxIgnoredAllocs = 16

// PassContext tracks the budget of a single defragmentation pass across multiple relocations
type PassContext struct {
	// MaxPassBytes is the maximum number of bytes to relocate in each pass. There is no guarantee that
	// this many bytes will actually be relocated in any given pass.
	MaxPassBytes int
	// MaxPassAllocations is the maximum number of relocations to perform in each pass
	MaxPassAllocations int
	// Stats contains statistics for the current pass
	Stats         DefragmentationStats
	ignoredAllocs int
}

// NewPassContext creates a PassContext with the provided limits. A limit of 0 is unlimited.
func NewPassContext(maxBytes, maxAllocations int) PassContext {
	if maxBytes == 0 {
		maxBytes = math.MaxInt
	}
	if maxAllocations == 0 {
		maxAllocations = math.MaxInt
	}

	return PassContext{
		MaxPassBytes:       maxBytes,
		MaxPassAllocations: maxAllocations,
	}
}

// CheckCounters decides whether a relocation of the given size fits in what remains of the budget
func (p *PassContext) CheckCounters(bytes int) CounterStatus {
	if p.Stats.BytesMoved+bytes > p.MaxPassBytes {
		p.ignoredAllocs++
		if p.ignoredAllocs < maxIgnoredAllocs {
			return CounterIgnore
		}
		return CounterEnd
	}

	p.ignoredAllocs = 0
	return CounterPass
}

// IncrementCounters records a collected relocation and returns true once the budget is spent
func (p *PassContext) IncrementCounters(bytes int) bool {
	p.Stats.BytesMoved += bytes
	p.Stats.AllocationsMoved++

	if p.Stats.AllocationsMoved >= p.MaxPassAllocations || p.Stats.BytesMoved >= p.MaxPassBytes {
		if p.Stats.AllocationsMoved != p.MaxPassAllocations && p.Stats.BytesMoved != p.MaxPassBytes {
			panic(fmt.Sprintf("somehow passed maximum pass thresholds: bytes %d, allocs %d", p.Stats.BytesMoved, p.Stats.AllocationsMoved))
		}

		return true
	}

	return false
}
