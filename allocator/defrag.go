package allocator

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/buddy/memutils/defrag"
	"golang.org/x/exp/slices"
	"golang.org/x/exp/slog"
)

// DefragmentationInfo is used to specify options for a defragmentation run
type DefragmentationInfo struct {
	// MaxBytesPerPass is the maximum number of bytes to relocate in each pass. 0 is unlimited.
	MaxBytesPerPass int
	// MaxAllocationsPerPass is the maximum number of Allocation objects to relocate in each pass.
	// 0 is unlimited.
	MaxAllocationsPerPass int
}

// DefragmentationContext represents a single compaction run, which consists of one or more passes.
// Each pass moves allocations from the top of the region into the lowest free blocks that can hold
// them, so that freed blocks further up can merge with their buddies.
type DefragmentationContext struct {
	allocator *Allocator

	maxPassBytes       int
	maxPassAllocations int

	pass       defrag.PassContext
	moves      []defrag.DefragmentationMove[Allocation]
	stats      defrag.DefragmentationStats
	generation int
}

// BeginDefragmentation starts a compaction run. Allocation offsets change as passes complete, and
// slices returned by Allocation.Bytes before a pass must not be used after it.
func (a *Allocator) BeginDefragmentation(info DefragmentationInfo) *DefragmentationContext {
	a.logger.Debug("Allocator::BeginDefragmentation",
		slog.Int("MaxBytesPerPass", info.MaxBytesPerPass),
		slog.Int("MaxAllocationsPerPass", info.MaxAllocationsPerPass),
	)

	return &DefragmentationContext{
		allocator:          a,
		maxPassBytes:       info.MaxBytesPerPass,
		maxPassAllocations: info.MaxAllocationsPerPass,
	}
}

// BeginDefragPass collects the relocations for a single pass and reserves a destination block for
// each of them. Before calling EndDefragPass, the caller may set the MoveOperation of any element
// of the returned slice to defrag.DefragmentationMoveIgnore or defrag.DefragmentationMoveDestroy.
func (c *DefragmentationContext) BeginDefragPass() []defrag.DefragmentationMove[Allocation] {
	a := c.allocator
	a.logger.Debug("DefragmentationContext::BeginDefragPass")

	a.mutex.Lock()
	defer a.mutex.Unlock()

	c.pass = defrag.NewPassContext(c.maxPassBytes, c.maxPassAllocations)
	c.moves = c.moves[:0]
	c.generation = a.generation

	candidates := make([]*Allocation, 0, a.live.Count())
	a.live.Iter(func(offset int, alloc *Allocation) bool {
		candidates = append(candidates, alloc)
		return false
	})
	slices.SortFunc(candidates, func(left, right *Allocation) int {
		return right.offset - left.offset
	})

	for _, alloc := range candidates {
		status := c.pass.CheckCounters(alloc.size)
		if status == defrag.CounterIgnore {
			continue
		} else if status == defrag.CounterEnd {
			break
		}

		dst, ok := a.metadata.AllocBelow(alloc.size, alloc.offset)
		if !ok {
			continue
		}

		c.moves = append(c.moves, defrag.DefragmentationMove[Allocation]{
			MoveOperation: defrag.DefragmentationMoveCopy,
			Size:          alloc.size,
			SrcOffset:     alloc.offset,
			DstOffset:     dst,
			SrcAllocation: alloc,
		})

		if c.pass.IncrementCounters(alloc.size) {
			break
		}
	}
	a.reserved += len(c.moves)

	return c.moves
}

// EndDefragPass completes the moves collected by BeginDefragPass: relocated allocations keep their
// Allocation objects but report their new offsets, and their old blocks are freed. It returns true
// when the run is complete and no further passes are necessary.
func (c *DefragmentationContext) EndDefragPass() (bool, error) {
	a := c.allocator
	a.logger.Debug("DefragmentationContext::EndDefragPass", slog.Int("Moves", len(c.moves)))

	if len(c.moves) == 0 {
		return true, nil
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	// The reserved destination blocks were released along with everything else
	if c.generation != a.generation {
		c.moves = c.moves[:0]
		return true, errors.Wrapf(ErrDefragmentationCancelled, "pass began before the allocator was destroyed")
	}

	for _, move := range c.moves {
		c.completeMove(move)
	}
	a.reserved -= len(c.moves)
	c.moves = c.moves[:0]
	c.stats.Add(c.pass.Stats)

	return false, a.validateOperation()
}

func (c *DefragmentationContext) completeMove(move defrag.DefragmentationMove[Allocation]) {
	a := c.allocator
	alloc := move.SrcAllocation

	// The allocation may have been freed while the pass was in progress
	if live, ok := a.live.Get(move.SrcOffset); !ok || live != alloc {
		move.MoveOperation = defrag.DefragmentationMoveIgnore
	}

	switch move.MoveOperation {
	case defrag.DefragmentationMoveCopy:
		a.metadata.Move(move.DstOffset, move.SrcOffset)
		a.live.Delete(move.SrcOffset)
		a.metadata.Free(move.SrcOffset)

		alloc.offset = move.DstOffset
		a.live.Put(move.DstOffset, alloc)

		a.logger.LogAttrs(context.Background(), slog.LevelDebug, "DefragmentationContext::Move",
			slog.Int("SrcOffset", move.SrcOffset),
			slog.Int("DstOffset", move.DstOffset),
			slog.Int("BlockSize", move.Size),
		)
		a.callbacks.Free(move.SrcOffset, move.Size)
		a.callbacks.Allocate(move.DstOffset, move.Size)
		return

	case defrag.DefragmentationMoveIgnore:
		c.pass.Stats.BytesMoved -= move.Size
		c.pass.Stats.AllocationsMoved--

	case defrag.DefragmentationMoveDestroy:
		c.pass.Stats.BytesMoved -= move.Size
		c.pass.Stats.AllocationsMoved--
		c.pass.Stats.BytesFreed += move.Size
		c.pass.Stats.AllocationsFreed++

		a.live.Delete(move.SrcOffset)
		a.metadata.Free(move.SrcOffset)
		alloc.parent = nil
		a.callbacks.Free(move.SrcOffset, move.Size)

	default:
		panic(fmt.Sprintf("unknown move operation: %s", move.MoveOperation))
	}

	a.metadata.Free(move.DstOffset)
}

// Finish writes the statistics accumulated over every pass of the run to outStats, if it is not nil
func (c *DefragmentationContext) Finish(outStats *defrag.DefragmentationStats) {
	c.allocator.logger.Debug("DefragmentationContext::Finish",
		slog.Int("BytesMoved", c.stats.BytesMoved),
		slog.Int("AllocationsMoved", c.stats.AllocationsMoved),
	)

	if outStats != nil {
		*outStats = c.stats
	}
}

// Defragment runs passes until the run is complete and returns the accumulated statistics
func (a *Allocator) Defragment(info DefragmentationInfo) (defrag.DefragmentationStats, error) {
	c := a.BeginDefragmentation(info)

	for {
		c.BeginDefragPass()

		done, err := c.EndDefragPass()
		if err != nil {
			return defrag.DefragmentationStats{}, err
		}
		if done {
			break
		}
	}

	var stats defrag.DefragmentationStats
	c.Finish(&stats)
	return stats, nil
}
