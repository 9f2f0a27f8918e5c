package dynamic

import (
	"log/slog"
	"math"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
)

// SubAllocatorOptions configure a SubAllocator
type SubAllocatorOptions struct {
	Name string
	// Alignment is the minimum alignment of every allocation and the granularity sizes are
	// rounded up to. It must be a power of two; zero means 1.
	Alignment uint
	// Shared allocators may be called from several goroutines at once
	Shared bool
}

// Allocation is a range of a chunk handed out by a SubAllocator. It is valid until the frame
// that allocated it has been retired.
type Allocation struct {
	Chunk  *Chunk
	Offset int
	Size   int
}

// HeapOffset returns the allocation's offset within the chunk pool's backing heap
func (a Allocation) HeapOffset() int {
	return a.Chunk.Offset() + a.Offset
}

// SubAllocator is a per-context linear allocator for short-lived data such as constants,
// upload staging, or descriptors. Allocation bumps an offset in the current chunk; when the
// chunk is exhausted a new one is acquired from the pool and the old one is kept until the
// end of the frame, because in-flight GPU work may still reference it.
//
// An allocator that is not Shared must only be used from one goroutine at a time. A Shared
// allocator bumps with compare-and-swap and only locks to replace an exhausted chunk.
type SubAllocator struct {
	logger    *slog.Logger
	name      string
	pool      *ChunkPool
	alignment uint
	shared    bool

	current atomic.Pointer[Chunk]

	mutex utils.OptionalMutex
	// owned holds exhausted and dedicated chunks until ReleaseChunks
	owned []*Chunk

	allocationCount atomic.Int64
	allocationBytes atomic.Int64
}

func NewSubAllocator(logger *slog.Logger, pool *ChunkPool, options SubAllocatorOptions) (*SubAllocator, error) {
	alignment := options.Alignment
	if alignment == 0 {
		alignment = 1
	}

	err := memutils.CheckPow2(alignment, "Alignment")
	if err != nil {
		return nil, err
	}

	if pool == nil {
		return nil, cerrors.New("sub-allocator requires a chunk pool")
	}

	if !memutils.IsAligned(pool.ChunkSize(), alignment) {
		return nil, cerrors.Newf("chunk size %d is not a multiple of alignment %d", pool.ChunkSize(), alignment)
	}

	return &SubAllocator{
		logger:    utils.LoggerOrDiscard(logger),
		name:      options.Name,
		pool:      pool,
		alignment: alignment,
		shared:    options.Shared,
		mutex: utils.OptionalMutex{
			UseMutex: options.Shared,
		},
	}, nil
}

func (a *SubAllocator) Name() string         { return a.name }
func (a *SubAllocator) Alignment() uint      { return a.alignment }
func (a *SubAllocator) Pool() *ChunkPool     { return a.pool }
func (a *SubAllocator) CurrentChunk() *Chunk { return a.current.Load() }

// OwnedChunkCount returns the number of chunks the allocator holds, including the current one
func (a *SubAllocator) OwnedChunkCount() int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	count := len(a.owned)
	if a.current.Load() != nil {
		count++
	}
	return count
}

// Allocate returns size bytes (or descriptors) aligned to the allocator's alignment
func (a *SubAllocator) Allocate(size int) (Allocation, error) {
	return a.AllocateAligned(size, a.alignment)
}

// maxAlignment bounds the alignment of a single allocation
const maxAlignment uint = 1 << 30

// AllocateAligned returns size bytes whose position in the backing heap is aligned to the
// larger of alignment and the allocator's alignment. Sizes are rounded up to the allocator's
// alignment. Requests that cannot fit a standard chunk, including the padding their alignment
// may need, receive a dedicated chunk of the rounded size plus that padding.
func (a *SubAllocator) AllocateAligned(size int, alignment uint) (Allocation, error) {
	err := memutils.CheckSize(size, "size")
	if err != nil {
		return Allocation{}, memutils.PreconditionFailed(err)
	}

	if alignment < a.alignment {
		alignment = a.alignment
	}
	err = memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return Allocation{}, memutils.PreconditionFailed(err)
	}
	if alignment > maxAlignment {
		return Allocation{}, memutils.PreconditionFailed(cerrors.Newf("alignment %d is larger than %d", alignment, maxAlignment))
	}

	if size > math.MaxInt-int(alignment) {
		return Allocation{}, cerrors.Wrapf(ErrOutOfDeviceMemory, "sub-allocator %q cannot hold %d bytes", a.name, size)
	}
	size = memutils.AlignUp(size, a.alignment)

	if size+int(alignment-a.alignment) > a.pool.ChunkSize() {
		return a.allocateDedicated(size, alignment)
	}

	for {
		chunk := a.current.Load()
		if chunk != nil {
			offset, ok := chunk.bump(size, alignment, a.shared)
			if ok {
				a.allocationCount.Add(1)
				a.allocationBytes.Add(int64(size))
				return Allocation{Chunk: chunk, Offset: offset, Size: size}, nil
			}

			if chunk.HighWater() == 0 {
				// An empty chunk whose base is not aligned enough
				return a.allocateDedicated(size, alignment)
			}
		}

		err = a.replaceChunk(chunk)
		if err != nil {
			return Allocation{}, err
		}
	}
}

// replaceChunk swaps in a fresh chunk if exhausted is still the current one
func (a *SubAllocator) replaceChunk(exhausted *Chunk) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.current.Load() != exhausted {
		// Another goroutine already replaced it
		return nil
	}

	a.logger.Debug("SubAllocator::replaceChunk", slog.String("name", a.name))

	chunk, err := a.pool.AcquireChunk(a.pool.ChunkSize())
	if err != nil {
		return err
	}

	if exhausted != nil {
		a.owned = append(a.owned, exhausted)
	}
	a.current.Store(chunk)
	return nil
}

func (a *SubAllocator) allocateDedicated(size int, alignment uint) (Allocation, error) {
	a.logger.Debug("SubAllocator::allocateDedicated", slog.String("name", a.name), slog.Int("size", size))

	// Heap blocks are aligned to the allocator's alignment at least
	chunk, err := a.pool.AcquireChunk(size + int(alignment-a.alignment))
	if err != nil {
		return Allocation{}, err
	}

	offset, ok := chunk.bump(size, alignment, false)

	a.mutex.Lock()
	a.owned = append(a.owned, chunk)
	a.mutex.Unlock()

	if !ok {
		return Allocation{}, memutils.PreconditionFailed(
			cerrors.Newf("heap block at %d of sub-allocator %q is not aligned to %d", chunk.Offset(), a.name, a.alignment),
		)
	}

	a.allocationCount.Add(1)
	a.allocationBytes.Add(int64(size))
	return Allocation{Chunk: chunk, Offset: offset, Size: size}, nil
}

// ReleaseChunks retires every chunk used since the last call, including the current one, with
// the fence that will signal when the GPU has finished the frame. No allocation may be made
// concurrently with this call.
func (a *SubAllocator) ReleaseChunks(fence uint64) error {
	a.logger.Debug("SubAllocator::ReleaseChunks", slog.String("name", a.name), slog.Uint64("fence", fence))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	chunks := a.owned
	a.owned = nil

	if current := a.current.Swap(nil); current != nil {
		chunks = append(chunks, current)
	}

	var err error
	for _, chunk := range chunks {
		retireErr := a.pool.RetireChunk(chunk, fence)
		if retireErr != nil && err == nil {
			err = retireErr
		}
	}

	a.allocationCount.Store(0)
	a.allocationBytes.Store(0)
	return err
}

// Close verifies that every chunk the allocator used has been handed back with
// ReleaseChunks. The allocator must not be used afterward.
func (a *SubAllocator) Close() error {
	a.logger.Debug("SubAllocator::Close", slog.String("name", a.name))

	a.mutex.Lock()
	defer a.mutex.Unlock()

	if len(a.owned) > 0 || a.current.Load() != nil {
		return cerrors.Wrapf(ErrChunksInUse, "sub-allocator %q closed before releasing its chunks", a.name)
	}

	return nil
}

// AddStatistics adds the chunks the allocator holds and the allocations made since the last
// ReleaseChunks to stats
func (a *SubAllocator) AddStatistics(stats *memutils.Statistics) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	for _, chunk := range a.owned {
		stats.ChunkCount++
		stats.ChunkBytes += chunk.Size()
	}

	if current := a.current.Load(); current != nil {
		stats.ChunkCount++
		stats.ChunkBytes += current.Size()
	}

	stats.AllocationCount += int(a.allocationCount.Load())
	stats.AllocationBytes += int(a.allocationBytes.Load())
}
