package buddy_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/buddy/buddy"
)

func newAllocator(t testing.TB, config buddy.Config) *buddy.Allocator {
	a, err := buddy.New(config)
	require.NoError(t, err)
	return a
}

// requireFreeCounts checks the free block count at every order, starting from MinOrder
func requireFreeCounts(t *testing.T, a *buddy.Allocator, expected ...int) {
	t.Helper()

	counts := a.FreeBlockCounts()
	actual := make([]int, 0, len(counts))
	for _, count := range counts {
		actual = append(actual, count.FreeBlocks)
	}

	require.Equal(t, expected, actual)
	require.NoError(t, a.Validate())
}

func requireDump(t *testing.T, a *buddy.Allocator, expected string) {
	t.Helper()

	var out bytes.Buffer
	require.NoError(t, a.Dump(&out))
	require.Equal(t, expected, out.String())
}

func TestInit_SingleMaxOrderBlock(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	requireFreeCounts(t, a, 0, 0, 0, 0, 0, 0, 0, 0, 1)
	requireDump(t, a, "0:4K 0:8K 0:16K 0:32K 0:64K 0:128K 0:256K 0:512K 1:1024K \n")
	require.True(t, a.IsEmpty())
	require.Equal(t, 1<<20, a.Size())
	require.Equal(t, 1<<20, a.SumFreeSize())
}

func TestAlloc_SplitCascade(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	offset, err := a.Alloc(4096)
	require.NoError(t, err)
	require.Equal(t, 0, offset)

	requireFreeCounts(t, a, 1, 1, 1, 1, 1, 1, 1, 1, 0)
	requireDump(t, a, "1:4K 1:8K 1:16K 1:32K 1:64K 1:128K 1:256K 1:512K 0:1024K \n")
	require.Equal(t, 1, a.AllocationCount())
	require.Equal(t, 4096, a.BlockSize(offset))
}

func TestFree_CoalescingRoundTrip(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	offset, err := a.Alloc(4096)
	require.NoError(t, err)

	a.Free(offset)

	requireFreeCounts(t, a, 0, 0, 0, 0, 0, 0, 0, 0, 1)
	require.True(t, a.IsEmpty())
}

func TestAlloc_ConsecutiveMinimumBlocksAreBuddies(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	first, err := a.Alloc(4096)
	require.NoError(t, err)
	second, err := a.Alloc(4096)
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.Equal(t, 4096, first^second)
}

func TestFree_SiblingsMergeInEitherOrder(t *testing.T) {
	testCases := map[string]func(left, right int) []int{
		"LeftFirst":  func(left, right int) []int { return []int{left, right} },
		"RightFirst": func(left, right int) []int { return []int{right, left} },
	}

	for name, freeOrder := range testCases {
		t.Run(name, func(t *testing.T) {
			a := newAllocator(t, buddy.DefaultConfig())

			var offsets []int
			for i := 0; i < 4; i++ {
				offset, err := a.Alloc(4096)
				require.NoError(t, err)
				offsets = append(offsets, offset)
			}
			require.Equal(t, []int{0, 4096, 8192, 12288}, offsets)
			requireFreeCounts(t, a, 0, 0, 1, 1, 1, 1, 1, 1, 0)

			for _, offset := range freeOrder(offsets[0], offsets[1]) {
				a.Free(offset)
			}

			// The merged 8K block cannot merge further while its own buddy is allocated
			requireFreeCounts(t, a, 0, 1, 1, 1, 1, 1, 1, 1, 0)
			require.Equal(t, 2, a.AllocationCount())
		})
	}
}

func TestAlloc_TooLarge(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	_, err := a.Alloc(1<<20 + 1)
	require.Error(t, err)
	require.True(t, errors.Is(err, buddy.ErrSizeTooLarge))
	require.False(t, errors.Is(err, buddy.ErrExhausted))

	requireFreeCounts(t, a, 0, 0, 0, 0, 0, 0, 0, 0, 1)
}

func TestAlloc_WholeRegionThenExhausted(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	offset, err := a.Alloc(1 << 20)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
	require.Equal(t, 0, a.SumFreeSize())

	_, err = a.Alloc(1)
	require.True(t, errors.Is(err, buddy.ErrExhausted))
	require.False(t, errors.Is(err, buddy.ErrSizeTooLarge))
	require.False(t, a.MayHaveFreeBlock(1))
}

func TestAlloc_InvalidSize(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	_, err := a.Alloc(0)
	require.True(t, errors.Is(err, buddy.ErrInvalidSize))

	_, err = a.Alloc(-12)
	require.True(t, errors.Is(err, buddy.ErrInvalidSize))
	require.False(t, a.MayHaveFreeBlock(0))
}

func TestAlloc_SubPageRequestsPromotedToPage(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	require.Equal(t, 12, a.OrderForSize(1))
	require.Equal(t, 12, a.OrderForSize(4096))
	require.Equal(t, 13, a.OrderForSize(4097))
	require.Equal(t, 16, a.OrderForSize(60*1024))
	require.Equal(t, 21, a.OrderForSize(1<<20+1))

	offset, err := a.Alloc(1)
	require.NoError(t, err)
	require.Equal(t, 4096, a.BlockSize(offset))
	require.Len(t, a.Bytes(offset), 4096)
}

func TestAlloc_AlignedWithinRegion(t *testing.T) {
	for size := 1; size <= 1<<20; size = size*3 + 1 {
		a := newAllocator(t, buddy.DefaultConfig())

		// Fragment the region a little so that the block does not always come from offset 0
		_, err := a.Alloc(4096)
		require.NoError(t, err)

		offset, err := a.Alloc(size)
		if size > 1<<19 {
			require.True(t, errors.Is(err, buddy.ErrExhausted))
			continue
		}
		require.NoError(t, err)

		blockSize := 1 << a.OrderForSize(size)
		require.Equal(t, blockSize, a.BlockSize(offset))
		require.Zerof(t, offset%blockSize, "offset %d for size %d is not aligned to %d", offset, size, blockSize)
		require.LessOrEqual(t, offset+blockSize, a.Size())
		require.GreaterOrEqual(t, blockSize, size)
	}
}

func TestAlloc_PrefersSmallestFreeBlock(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	_, err := a.Alloc(4096)
	require.NoError(t, err)

	// The 8K block left behind by the first split is used rather than splitting a larger one
	offset, err := a.Alloc(8192)
	require.NoError(t, err)
	require.Equal(t, 8192, offset)
	requireFreeCounts(t, a, 1, 0, 1, 1, 1, 1, 1, 1, 0)
}

type liveBlock struct {
	offset int
	size   int
}

func requireNoOverlap(t *testing.T, live []liveBlock, candidate liveBlock) {
	t.Helper()

	for _, block := range live {
		overlaps := candidate.offset < block.offset+block.size && block.offset < candidate.offset+candidate.size
		require.Falsef(t, overlaps, "block [%d, %d) overlaps live block [%d, %d)",
			candidate.offset, candidate.offset+candidate.size, block.offset, block.offset+block.size)
	}
}

func TestAlloc_ExhaustThenFreeEverything(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())
	random := rand.New(rand.NewSource(42))

	var live []liveBlock
	for {
		size := 1 + random.Intn(64*1024)
		offset, err := a.Alloc(size)
		if err != nil {
			require.True(t, errors.Is(err, buddy.ErrExhausted))
			break
		}

		block := liveBlock{offset: offset, size: a.BlockSize(offset)}
		requireNoOverlap(t, live, block)
		live = append(live, block)
	}

	require.NotEmpty(t, live)
	require.Equal(t, len(live), a.AllocationCount())
	require.NoError(t, a.Validate())

	random.Shuffle(len(live), func(i, j int) {
		live[i], live[j] = live[j], live[i]
	})
	for _, block := range live {
		a.Free(block.offset)
		require.NoError(t, a.Validate())
	}

	requireFreeCounts(t, a, 0, 0, 0, 0, 0, 0, 0, 0, 1)
	require.True(t, a.IsEmpty())
}

func TestAlloc_ChurnNeverAliasesLiveBlocks(t *testing.T) {
	a := newAllocator(t, buddy.Config{MinOrder: 6, MaxOrder: 14})
	random := rand.New(rand.NewSource(7))

	var live []liveBlock
	for i := 0; i < 2000; i++ {
		if len(live) > 0 && random.Intn(3) == 0 {
			victim := random.Intn(len(live))
			a.Free(live[victim].offset)
			live = append(live[:victim], live[victim+1:]...)
			continue
		}

		offset, err := a.Alloc(1 + random.Intn(2048))
		if err != nil {
			require.True(t, errors.Is(err, buddy.ErrExhausted))
			continue
		}

		block := liveBlock{offset: offset, size: a.BlockSize(offset)}
		requireNoOverlap(t, live, block)
		live = append(live, block)
	}

	require.NoError(t, a.Validate())
	require.Equal(t, len(live), a.AllocationCount())
}

func TestInit_DiscardsAllocations(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	for i := 0; i < 10; i++ {
		_, err := a.Alloc(5000)
		require.NoError(t, err)
	}

	a.Init()
	requireFreeCounts(t, a, 0, 0, 0, 0, 0, 0, 0, 0, 1)
	require.Zero(t, a.AllocationCount())
}

func TestAllocator_IndependentInstances(t *testing.T) {
	left := newAllocator(t, buddy.DefaultConfig())
	right := newAllocator(t, buddy.DefaultConfig())

	_, err := left.Alloc(1 << 20)
	require.NoError(t, err)

	offset, err := right.Alloc(1 << 20)
	require.NoError(t, err)
	require.Equal(t, 0, offset)
}

func TestBytes_AliasesRegion(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	first, err := a.Alloc(100)
	require.NoError(t, err)
	second, err := a.Alloc(100)
	require.NoError(t, err)

	firstBytes := a.Bytes(first)
	require.Len(t, firstBytes, 4096)
	require.Equal(t, 4096, cap(firstBytes))

	a.Bytes(second)[0] = 0x11
	for i := range firstBytes {
		firstBytes[i] = 0xAB
	}

	require.Equal(t, byte(0xAB), a.Bytes(first)[4095])
	require.Equal(t, byte(0x11), a.Bytes(second)[0])
}

func TestFree_MisusePanics(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	offset, err := a.Alloc(4096)
	require.NoError(t, err)

	require.Panics(t, func() { a.Free(-4096) })
	require.Panics(t, func() { a.Free(1 << 20) })
	require.Panics(t, func() { a.Free(offset + 1) })

	// The upper half of the first split is still free
	require.Panics(t, func() { a.Free(4096) })

	require.NoError(t, a.Validate())
}

func TestMayHaveFreeBlock(t *testing.T) {
	a := newAllocator(t, buddy.DefaultConfig())

	require.True(t, a.MayHaveFreeBlock(1<<20))
	require.False(t, a.MayHaveFreeBlock(1<<20+1))

	_, err := a.Alloc(1)
	require.NoError(t, err)

	require.False(t, a.MayHaveFreeBlock(1<<20))
	require.True(t, a.MayHaveFreeBlock(1<<19))
}
