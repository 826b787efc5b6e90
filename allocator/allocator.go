// Package allocator wraps a buddy.Allocator for consumers that want handle-based allocations,
// ownership checks on free, optional internal locking, logging, and statistics reports.
package allocator

import (
	"context"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/vkngwrapper/buddy/allocator/internal/utils"
	"github.com/vkngwrapper/buddy/buddy"
	"github.com/vkngwrapper/buddy/memutils"
	"golang.org/x/exp/slog"
)

var (
	// ErrAllocationNotLive is returned when freeing an allocation that has already been freed, or
	// that was never created by the allocator it is being freed from
	ErrAllocationNotLive = errors.New("allocation is not live")
	// ErrUnreleasedAllocations is returned from Destroy when allocations were still live
	ErrUnreleasedAllocations = errors.New("allocator destroyed with live allocations")
	// ErrDefragmentationCancelled is returned from EndDefragPass when the allocator was destroyed
	// while the pass was in progress
	ErrDefragmentationCancelled = errors.New("allocator was destroyed during defragmentation")
)

// Allocator hands out Allocation objects backed by blocks of a single buddy-managed region. Unless
// it was created with CreateExternallySynchronized, it is safe for concurrent use.
type Allocator struct {
	logger *slog.Logger
	flags  CreateFlags
	mutex  utils.OptionalRWMutex

	metadata  *buddy.Allocator
	live      *swiss.Map[int, *Allocation]
	callbacks memoryCallbacks

	// reserved counts destination blocks held by an in-progress defragmentation pass
	reserved int
	// generation is advanced by Destroy so that passes begun before it can be abandoned
	generation int
}

// Allocate reserves a block of at least size bytes. userData is stored on the allocation and
// is reported by BuildStatsString and Destroy.
//
// The returned error wraps buddy.ErrInvalidSize, buddy.ErrSizeTooLarge or buddy.ErrExhausted
// when the request cannot be satisfied.
func (a *Allocator) Allocate(size int, userData any) (*Allocation, error) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	offset, err := a.metadata.Alloc(size)
	if err != nil {
		a.logger.Debug("Allocator::Allocate failed", slog.Int("Size", size), slog.Any("error", err))
		return nil, err
	}

	alloc := &Allocation{
		parent:        a,
		offset:        offset,
		size:          a.metadata.BlockSize(offset),
		requestedSize: size,
		userData:      userData,
	}
	a.live.Put(offset, alloc)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Allocate",
		slog.Int("Size", size),
		slog.Int("Offset", offset),
		slog.Int("BlockSize", alloc.size),
	)

	if err := a.validateOperation(); err != nil {
		a.live.Delete(offset)
		a.metadata.Free(offset)
		return nil, err
	}

	a.callbacks.Allocate(offset, alloc.size)
	return alloc, nil
}

// FreeAt frees the live allocation that begins at offset
func (a *Allocator) FreeAt(offset int) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	alloc, ok := a.live.Get(offset)
	if !ok {
		return errors.Wrapf(ErrAllocationNotLive, "no allocation begins at offset %d", offset)
	}

	return a.freeLocked(alloc)
}

func (a *Allocator) free(alloc *Allocation) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	live, ok := a.live.Get(alloc.offset)
	if !ok || live != alloc {
		return errors.Wrapf(ErrAllocationNotLive, "allocation at offset %d", alloc.offset)
	}

	return a.freeLocked(alloc)
}

func (a *Allocator) freeLocked(alloc *Allocation) error {
	a.live.Delete(alloc.offset)
	a.metadata.Free(alloc.offset)

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "Allocator::Free",
		slog.Int("Offset", alloc.offset),
		slog.Int("BlockSize", alloc.size),
	)

	if err := a.validateOperation(); err != nil {
		return err
	}

	a.callbacks.Free(alloc.offset, alloc.size)
	return nil
}

func (a *Allocator) validateOperation() error {
	if a.flags&CreateValidateOperations == 0 {
		return nil
	}

	err := a.checkIntegrityLocked()
	if err != nil {
		a.logger.Error("allocator metadata failed validation", slog.Any("error", err))
	}
	return err
}

// MayAllocate returns true if an allocation of size bytes would currently succeed
func (a *Allocator) MayAllocate(size int) bool {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.metadata.MayHaveFreeBlock(size)
}

// Size returns the size in bytes of the managed region
func (a *Allocator) Size() int {
	return a.metadata.Size()
}

// Config returns the block orders of the managed region
func (a *Allocator) Config() buddy.Config {
	return a.metadata.Config()
}

// AllocationCount returns the number of live allocations
func (a *Allocator) AllocationCount() int {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.live.Count()
}

// Statistics returns a summary of the region that can be computed in constant time
func (a *Allocator) Statistics() memutils.Statistics {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	var stats memutils.Statistics
	a.metadata.AddStatistics(&stats)
	return stats
}

// CalculateStatistics populates stats with a detailed summary of the region. Every block is
// visited, so this should generally be reserved for diagnostics.
func (a *Allocator) CalculateStatistics(stats *memutils.DetailedStatistics) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	stats.Clear()
	a.metadata.AddDetailedStatistics(stats)
}

// FreeBlockCounts returns the number of free blocks at every order
func (a *Allocator) FreeBlockCounts() []buddy.OrderCount {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.metadata.FreeBlockCounts()
}

// Dump writes the free block count at every order to w on a single line
func (a *Allocator) Dump(w io.Writer) error {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	return a.metadata.Dump(w)
}

// CheckIntegrity validates the region metadata and verifies that every live allocation heads an
// allocated block of the size it was created with.
func (a *Allocator) CheckIntegrity() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	return a.checkIntegrityLocked()
}

func (a *Allocator) checkIntegrityLocked() error {
	if err := a.metadata.Validate(); err != nil {
		return err
	}

	if a.live.Count()+a.reserved != a.metadata.AllocationCount() {
		return errors.Newf("%d allocations are live and %d blocks are reserved, but the region holds %d allocated blocks", a.live.Count(), a.reserved, a.metadata.AllocationCount())
	}

	var err error
	a.live.Iter(func(offset int, alloc *Allocation) bool {
		if alloc.offset != offset {
			err = errors.Newf("allocation at offset %d is registered at offset %d", alloc.offset, offset)
			return true
		}

		if size := a.metadata.BlockSize(offset); size != alloc.size {
			err = errors.Newf("allocation at offset %d has size %d, but its block has size %d", offset, alloc.size, size)
			return true
		}

		return false
	})

	return err
}

// Destroy releases every block in the region. Allocations that are still live are logged and
// cause ErrUnreleasedAllocations to be returned; they must not be used afterward. A defragmentation
// pass in progress is abandoned, and its EndDefragPass returns ErrDefragmentationCancelled.
func (a *Allocator) Destroy() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	unreleased := a.live.Count()
	a.live.Iter(func(offset int, alloc *Allocation) bool {
		a.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.Int("offset", offset),
			slog.Int("size", alloc.size),
			slog.String("userData", fmt.Sprintf("%v", alloc.userData)),
		)
		alloc.parent = nil
		return false
	})

	a.live.Clear()
	a.metadata.Init()
	a.reserved = 0
	a.generation++

	if unreleased > 0 {
		return errors.Wrapf(ErrUnreleasedAllocations, "%d allocations were never freed", unreleased)
	}

	return nil
}
