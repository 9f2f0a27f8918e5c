package dynamic_test

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gpucore/dynamic"
	mock_dynamic "github.com/vkngwrapper/gpucore/dynamic/mocks"
	"github.com/vkngwrapper/gpucore/memutils"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"
)

const megabyte = 1024 * 1024

func TestSubAllocator_OffsetsIncreaseWithinOneChunk(t *testing.T) {
	ctrl := gomock.NewController(t)
	heap := mock_dynamic.NewMockHeap(ctrl)
	expectBlocks(heap, 4096, 8192)

	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 4096})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	total := 0
	var previous dynamic.Allocation
	for {
		size := rng.Intn(100) + 1
		rounded := memutils.AlignUp(size, 16)
		if total+rounded > 4096 {
			break
		}
		total += rounded

		alloc, err := allocator.Allocate(size)
		require.NoError(t, err)
		require.Equal(t, rounded, alloc.Size)
		require.True(t, memutils.IsAligned(alloc.Offset, 16))

		if previous.Chunk != nil {
			require.Same(t, previous.Chunk, alloc.Chunk)
			require.Greater(t, alloc.Offset, previous.Offset)
			require.GreaterOrEqual(t, alloc.Offset, previous.Offset+previous.Size)
		}
		require.Equal(t, 8192+alloc.Offset, alloc.HeapOffset())
		previous = alloc
	}

	require.Equal(t, 1, allocator.OwnedChunkCount())
}

func TestSubAllocator_ExhaustedChunkIsRetiredNotFreed(t *testing.T) {
	ctrl := gomock.NewController(t)
	heap := mock_dynamic.NewMockHeap(ctrl)
	heap.EXPECT().AllocateBlock(megabyte).Return(dynamic.Block{Offset: 0, Size: megabyte}, nil)
	heap.EXPECT().AllocateBlock(megabyte).Return(dynamic.Block{Offset: megabyte, Size: megabyte}, nil)

	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{Name: "upload", ChunkSize: megabyte})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 4})
	require.NoError(t, err)

	chunks := map[*dynamic.Chunk]int{}
	var first *dynamic.Chunk
	for i := 0; i < 4000; i++ {
		alloc, err := allocator.Allocate(300)
		require.NoError(t, err)
		if first == nil {
			first = alloc.Chunk
		}
		chunks[alloc.Chunk]++
	}

	require.Len(t, chunks, 2)
	require.Equal(t, megabyte/300, chunks[first])
	require.Equal(t, 2, allocator.OwnedChunkCount())

	var stats memutils.Statistics
	allocator.AddStatistics(&stats)
	require.Equal(t, 4000, stats.AllocationCount)
	require.Equal(t, 4000*300, stats.AllocationBytes)

	require.NoError(t, allocator.ReleaseChunks(1))
	require.Zero(t, allocator.OwnedChunkCount())

	var detailed memutils.DetailedStatistics
	detailed.Clear()
	pool.AddDetailedStatistics(&detailed)
	require.Equal(t, 2, detailed.RetiringChunkCount)
	require.Zero(t, detailed.FreeChunkCount)

	// Until fence 1 completes, another chunk must come from the heap
	heap.EXPECT().AllocateBlock(megabyte).Return(dynamic.Block{Offset: 2 * megabyte, Size: megabyte}, nil)
	third, err := pool.AcquireChunk(megabyte)
	require.NoError(t, err)
	require.NotSame(t, first, third)
	require.Zero(t, pool.ReclaimCompleted(0))

	require.Equal(t, 2, pool.ReclaimCompleted(1))
	reused, err := pool.AcquireChunk(megabyte)
	require.NoError(t, err)
	_, wasUsed := chunks[reused]
	require.True(t, wasUsed)
	require.NoError(t, pool.Validate())
}

func TestSubAllocator_OversizedRequestGetsDedicatedChunk(t *testing.T) {
	ctrl := gomock.NewController(t)
	heap := mock_dynamic.NewMockHeap(ctrl)
	expectBlocks(heap, 256, 0)
	expectBlocks(heap, 1008, 256)

	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 256})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.NoError(t, err)

	small, err := allocator.Allocate(32)
	require.NoError(t, err)

	big, err := allocator.Allocate(1000)
	require.NoError(t, err)
	require.True(t, big.Chunk.Dedicated())
	require.Equal(t, 1008, big.Size)
	require.Zero(t, big.Offset)

	// The current chunk is not displaced by the dedicated one
	next, err := allocator.Allocate(32)
	require.NoError(t, err)
	require.Same(t, small.Chunk, next.Chunk)
	require.Same(t, small.Chunk, allocator.CurrentChunk())
	require.Equal(t, 2, allocator.OwnedChunkCount())
}

func TestSubAllocator_AllocateAligned(t *testing.T) {
	ctrl := gomock.NewController(t)
	heap := mock_dynamic.NewMockHeap(ctrl)
	expectBlocks(heap, 1024, 0)

	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 1024})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 4})
	require.NoError(t, err)

	_, err = allocator.Allocate(4)
	require.NoError(t, err)

	alloc, err := allocator.AllocateAligned(8, 256)
	require.NoError(t, err)
	require.Equal(t, 256, alloc.Offset)

	alloc, err = allocator.AllocateAligned(5, 1)
	require.NoError(t, err)
	require.Equal(t, 264, alloc.Offset)
	require.Equal(t, 8, alloc.Size)
}

func TestSubAllocator_SharedConcurrentAllocations(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 64*4096, 16, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 4096})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16, Shared: true})
	require.NoError(t, err)

	const workers = 8
	const perWorker = 500

	results := make([][]dynamic.Allocation, workers)
	var group errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		group.Go(func() error {
			for i := 0; i < perWorker; i++ {
				alloc, err := allocator.Allocate(48)
				if err != nil {
					return err
				}
				results[w] = append(results[w], alloc)
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	var all []dynamic.Allocation
	for _, r := range results {
		all = append(all, r...)
	}
	require.Len(t, all, workers*perWorker)

	sort.Slice(all, func(i, j int) bool { return all[i].HeapOffset() < all[j].HeapOffset() })
	for i := 1; i < len(all); i++ {
		require.GreaterOrEqual(t, all[i].HeapOffset(), all[i-1].HeapOffset()+all[i-1].Size)
	}

	require.NoError(t, allocator.ReleaseChunks(1))
	require.Equal(t, pool.ReclaimCompleted(1), heap.BlockCount())
	require.NoError(t, pool.Validate())
	require.NoError(t, heap.Validate())
}

func TestSubAllocator_OutOfDeviceMemory(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 2048, 16, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 1024})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err = allocator.Allocate(1024)
		require.NoError(t, err)
	}

	_, err = allocator.Allocate(16)
	require.ErrorIs(t, err, dynamic.ErrOutOfDeviceMemory)
}

func TestSubAllocator_CloseRequiresReleasedChunks(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 4096, 16, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 1024})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.NoError(t, err)

	_, err = allocator.Allocate(64)
	require.NoError(t, err)
	require.ErrorIs(t, allocator.Close(), dynamic.ErrChunksInUse)

	require.NoError(t, allocator.ReleaseChunks(3))
	require.Nil(t, allocator.CurrentChunk())
	require.Equal(t, 1, pool.ReclaimCompleted(3))

	// The next frame reuses the reclaimed chunk rather than growing the heap
	_, err = allocator.Allocate(64)
	require.NoError(t, err)
	require.Equal(t, 1, heap.BlockCount())
	require.NoError(t, allocator.ReleaseChunks(4))
	require.Equal(t, 1, pool.ReclaimCompleted(4))

	require.NoError(t, allocator.Close())
	require.NoError(t, pool.Destroy())
	require.Zero(t, heap.AllocatedBytes())
}

func TestSubAllocator_InvalidAlignment(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 4096, 16, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 1000})
	require.NoError(t, err)

	_, err = dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 24})
	require.ErrorIs(t, err, memutils.PowerOfTwoError)

	_, err = dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.Error(t, err)
}

func TestSubAllocator_HugeRequestIsOutOfMemory(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 4096, 16, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 1024})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 16})
	require.NoError(t, err)

	// Rounding this up to the alignment would overflow
	_, err = allocator.Allocate(math.MaxInt - 10)
	require.ErrorIs(t, err, dynamic.ErrOutOfDeviceMemory)

	_, err = allocator.Allocate(math.MaxInt - 100)
	require.ErrorIs(t, err, dynamic.ErrOutOfDeviceMemory)
	require.Zero(t, heap.AllocatedBytes())

	first, err := allocator.Allocate(256)
	require.NoError(t, err)
	require.Zero(t, first.Offset)
	require.Equal(t, 256, first.Size)

	second, err := allocator.Allocate(256)
	require.NoError(t, err)
	require.Equal(t, 256, second.Offset)
	require.Same(t, first.Chunk, second.Chunk)
}

func TestSubAllocator_AlignmentAppliesToHeapOffset(t *testing.T) {
	heap, err := dynamic.NewVirtualHeap(nil, 64*1024, 256, 0)
	require.NoError(t, err)
	pool, err := dynamic.NewChunkPool(nil, heap, dynamic.PoolCreateOptions{ChunkSize: 4096})
	require.NoError(t, err)
	allocator, err := dynamic.NewSubAllocator(nil, pool, dynamic.SubAllocatorOptions{Alignment: 256})
	require.NoError(t, err)

	// A dedicated chunk of 17 * 256 bytes leaves the next chunk's base at 4352
	big, err := allocator.Allocate(4352)
	require.NoError(t, err)
	require.True(t, big.Chunk.Dedicated())
	require.Zero(t, big.HeapOffset())

	aligned, err := allocator.AllocateAligned(64, 4096)
	require.NoError(t, err)
	require.Equal(t, 4352, aligned.Chunk.Offset())
	require.Equal(t, 3840, aligned.Offset)
	require.Equal(t, 8192, aligned.HeapOffset())

	dedicated, err := allocator.AllocateAligned(5000, 4096)
	require.NoError(t, err)
	require.True(t, dedicated.Chunk.Dedicated())
	require.True(t, memutils.IsAligned(dedicated.HeapOffset(), 4096))
	require.LessOrEqual(t, dedicated.Offset+dedicated.Size, dedicated.Chunk.Size())

	for i := 0; i < 8; i++ {
		alloc, err := allocator.AllocateAligned(300, 1024)
		require.NoError(t, err)
		require.True(t, memutils.IsAligned(alloc.HeapOffset(), 1024))
	}

	if !memutils.DebugBuild {
		_, err = allocator.AllocateAligned(16, 1<<31)
		require.True(t, memutils.IsPreconditionFailure(err))
	}

	require.NoError(t, allocator.ReleaseChunks(1))
	require.NoError(t, heap.Validate())
}
