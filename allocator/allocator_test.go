package allocator_test

import (
	"bytes"
	"io"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/buddy/allocator"
	"github.com/vkngwrapper/buddy/buddy"
	"github.com/vkngwrapper/buddy/memutils"
	"golang.org/x/exp/slog"
)

func newAllocator(t *testing.T, options allocator.CreateOptions) *allocator.Allocator {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	a, err := allocator.New(logger, options)
	require.NoError(t, err)
	return a
}

func TestNew_DefaultConfig(t *testing.T) {
	a, err := allocator.New(nil, allocator.CreateOptions{})
	require.NoError(t, err)

	require.Equal(t, buddy.DefaultConfig(), a.Config())
	require.Equal(t, 1<<20, a.Size())
	require.NoError(t, a.Destroy())
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := allocator.New(nil, allocator.CreateOptions{MinOrder: 14, MaxOrder: 12})
	require.True(t, errors.Is(err, buddy.ErrInvalidConfig))
}

func TestAllocate_Basic(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{})

	alloc, err := a.Allocate(100, "first")
	require.NoError(t, err)
	require.Equal(t, 0, alloc.Offset())
	require.Equal(t, 4096, alloc.Size())
	require.Equal(t, 100, alloc.RequestedSize())
	require.Equal(t, "first", alloc.UserData())
	require.Equal(t, 1, a.AllocationCount())

	data, err := alloc.Bytes()
	require.NoError(t, err)
	require.Len(t, data, 4096)

	alloc.SetUserData("renamed")
	require.Equal(t, "renamed", alloc.UserData())

	require.NoError(t, alloc.Free())
	require.Equal(t, 0, a.AllocationCount())

	err = alloc.Free()
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))

	_, err = alloc.Bytes()
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))

	require.NoError(t, a.CheckIntegrity())
	require.NoError(t, a.Destroy())
}

func TestAllocate_StaleHandleDoesNotFreeNewOwner(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{})

	first, err := a.Allocate(4096, nil)
	require.NoError(t, err)
	require.NoError(t, first.Free())

	second, err := a.Allocate(4096, nil)
	require.NoError(t, err)
	require.Equal(t, first.Offset(), second.Offset())

	err = first.Free()
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))
	require.Equal(t, 1, a.AllocationCount())

	require.NoError(t, second.Free())
}

func TestAllocate_Errors(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{MinOrder: 10, MaxOrder: 12})

	_, err := a.Allocate(0, nil)
	require.True(t, errors.Is(err, buddy.ErrInvalidSize))

	_, err = a.Allocate(4097, nil)
	require.True(t, errors.Is(err, buddy.ErrSizeTooLarge))

	whole, err := a.Allocate(4096, nil)
	require.NoError(t, err)
	require.False(t, a.MayAllocate(1))

	_, err = a.Allocate(1, nil)
	require.True(t, errors.Is(err, buddy.ErrExhausted))

	require.NoError(t, whole.Free())
	require.True(t, a.MayAllocate(4096))
}

func TestFreeAt(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{})

	_, err := a.Allocate(4096, nil)
	require.NoError(t, err)
	second, err := a.Allocate(4096, nil)
	require.NoError(t, err)

	require.NoError(t, a.FreeAt(second.Offset()))

	err = a.FreeAt(second.Offset())
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))

	err = a.FreeAt(12345)
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))

	require.Equal(t, 1, a.AllocationCount())
}

func TestCallbacks(t *testing.T) {
	type event struct {
		kind   string
		offset int
		size   int
	}
	var events []event

	var a *allocator.Allocator
	a = newAllocator(t, allocator.CreateOptions{
		MemoryCallbackOptions: &allocator.MemoryCallbackOptions{
			Allocate: func(allocator *allocator.Allocator, offset int, size int, userData interface{}) {
				require.Same(t, a, allocator)
				require.Equal(t, "tag", userData)
				events = append(events, event{"alloc", offset, size})
			},
			Free: func(allocator *allocator.Allocator, offset int, size int, userData interface{}) {
				events = append(events, event{"free", offset, size})
			},
			UserData: "tag",
		},
	})

	alloc, err := a.Allocate(5000, nil)
	require.NoError(t, err)
	require.NoError(t, alloc.Free())

	_, err = a.Allocate(1<<21, nil)
	require.Error(t, err)

	require.Equal(t, []event{
		{"alloc", 0, 8192},
		{"free", 0, 8192},
	}, events)
}

func TestStatistics(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{})

	_, err := a.Allocate(4096, nil)
	require.NoError(t, err)
	_, err = a.Allocate(60*1024, nil)
	require.NoError(t, err)

	stats := a.Statistics()
	require.Equal(t, memutils.Statistics{
		RegionCount:     1,
		RegionBytes:     1 << 20,
		AllocationCount: 2,
		AllocationBytes: 4096 + 64*1024,
	}, stats)

	var detailed memutils.DetailedStatistics
	a.CalculateStatistics(&detailed)
	require.Equal(t, stats, detailed.Statistics)
	require.Equal(t, 4096, detailed.AllocationSizeMin)
	require.Equal(t, 64*1024, detailed.AllocationSizeMax)

	counts := a.FreeBlockCounts()
	require.Len(t, counts, 9)
	require.Equal(t, 1, counts[0].FreeBlocks)
	require.Equal(t, 0, counts[len(counts)-1].FreeBlocks)
}

func TestDump(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{})

	var out bytes.Buffer
	require.NoError(t, a.Dump(&out))
	require.Equal(t, "0:4K 0:8K 0:16K 0:32K 0:64K 0:128K 0:256K 0:512K 1:1024K \n", out.String())
}

func TestDestroy_ReportsUnreleasedAllocations(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	a, err := allocator.New(logger, allocator.CreateOptions{})
	require.NoError(t, err)

	leaked, err := a.Allocate(4096, "texture")
	require.NoError(t, err)

	err = a.Destroy()
	require.True(t, errors.Is(err, allocator.ErrUnreleasedAllocations))
	require.Contains(t, logs.String(), "[UNRELEASED MEMORY] unfreed allocation")
	require.Contains(t, logs.String(), "texture")

	err = leaked.Free()
	require.True(t, errors.Is(err, allocator.ErrAllocationNotLive))

	// The whole region is available again
	whole, err := a.Allocate(1<<20, nil)
	require.NoError(t, err)
	require.NoError(t, whole.Free())
	require.NoError(t, a.Destroy())
}

func TestValidateOperations(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{
		Flags:    allocator.CreateValidateOperations,
		MinOrder: 6,
		MaxOrder: 12,
	})

	var allocs []*allocator.Allocation
	for size := 1; size < 1024; size *= 3 {
		alloc, err := a.Allocate(size, size)
		require.NoError(t, err)
		allocs = append(allocs, alloc)
	}

	for _, alloc := range allocs {
		require.NoError(t, alloc.Free())
	}

	require.NoError(t, a.CheckIntegrity())
}

func TestConcurrentUse(t *testing.T) {
	a := newAllocator(t, allocator.CreateOptions{MinOrder: 6, MaxOrder: 16})

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()

			for i := 0; i < 500; i++ {
				alloc, err := a.Allocate(64<<(i%4), worker)
				if err != nil {
					continue
				}

				data, err := alloc.Bytes()
				if err == nil {
					data[0] = byte(worker)
				}

				if err := alloc.Free(); err != nil {
					t.Errorf("free failed: %v", err)
				}
			}
		}(worker)
	}
	wg.Wait()

	require.NoError(t, a.CheckIntegrity())
	require.Equal(t, 0, a.AllocationCount())

	counts := a.FreeBlockCounts()
	require.Equal(t, 1, counts[len(counts)-1].FreeBlocks)
}

func TestCreateFlags_String(t *testing.T) {
	require.Equal(t, "None", allocator.CreateFlags(0).String())
	require.Equal(t, "CreateExternallySynchronized", allocator.CreateExternallySynchronized.String())
	require.Equal(t, "CreateExternallySynchronized|CreateValidateOperations",
		(allocator.CreateExternallySynchronized | allocator.CreateValidateOperations).String())
	require.Equal(t, "CreateValidateOperations|CreateFlags(0x8)",
		(allocator.CreateValidateOperations | allocator.CreateFlags(8)).String())
}
