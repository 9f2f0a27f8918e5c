package dynamic

import (
	"context"
	"log/slog"
	"strconv"

	cerrors "github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"golang.org/x/exp/slices"
)

// PoolCreateFlags configure optional ChunkPool behavior
type PoolCreateFlags int32

const (
	// PoolCreateExternallySynchronized disables the pool's mutex. Only use it when every
	// allocator drawing from the pool records on the same goroutine.
	PoolCreateExternallySynchronized PoolCreateFlags = 1 << iota
)

var poolCreateFlagsMapping = map[PoolCreateFlags]string{
	PoolCreateExternallySynchronized: "PoolCreateExternallySynchronized",
}

func (f PoolCreateFlags) String() string {
	if f == 0 {
		return "None"
	}

	str, ok := poolCreateFlagsMapping[f]
	if !ok {
		return "unknown PoolCreateFlags"
	}

	return str
}

// PoolCreateOptions configure a ChunkPool
type PoolCreateOptions struct {
	Name  string
	Flags PoolCreateFlags
	// ChunkSize is the standard chunk size. Requests up to this size share the standard size
	// class; larger requests get chunks of exactly their size.
	ChunkSize int
	// ReserveChunks standard chunks are allocated up front and kept free
	ReserveChunks int
}

// ChunkPool hands out chunks of a backing heap and takes them back once the GPU is done with
// them. Chunks move from in-use to retiring when RetireChunk records the frame fence that last
// references them, and from retiring to free when ReclaimCompleted reports that fence complete.
// Free chunks are kept for reuse rather than returned to the heap; see Trim.
//
// The pool's mutex is only held to move chunks between lists, never while calling the heap.
type ChunkPool struct {
	logger    *slog.Logger
	name      string
	heap      Heap
	chunkSize int

	mutex utils.OptionalMutex
	// chunks holds every chunk the pool owns, keyed by id
	chunks *swiss.Map[int, *Chunk]
	// free holds the free chunks of each size class
	free *swiss.Map[int, []*Chunk]
	// retiring is sorted by fence so that reclamation only inspects a prefix
	retiring           []*Chunk
	inUseCount         int
	nextChunkID        int
	lastCompletedFence uint64
	destroyed          bool

	// fenceCompleted is false until the first ReclaimCompleted, so that fence 0 counts
	fenceCompleted bool
}

func NewChunkPool(logger *slog.Logger, heap Heap, options PoolCreateOptions) (*ChunkPool, error) {
	err := memutils.CheckSize(options.ChunkSize, "ChunkSize")
	if err != nil {
		return nil, err
	}

	if options.ReserveChunks < 0 {
		return nil, cerrors.Newf("ReserveChunks is %d", options.ReserveChunks)
	}

	pool := &ChunkPool{
		logger:    utils.LoggerOrDiscard(logger),
		name:      options.Name,
		heap:      heap,
		chunkSize: options.ChunkSize,
		mutex: utils.OptionalMutex{
			UseMutex: options.Flags&PoolCreateExternallySynchronized == 0,
		},
		chunks:      swiss.NewMap[int, *Chunk](16),
		free:        swiss.NewMap[int, []*Chunk](4),
		nextChunkID: 1,
	}

	err = pool.Reserve(options.ReserveChunks)
	if err != nil {
		pool.releaseFreeChunks()
		return nil, err
	}

	return pool, nil
}

func (p *ChunkPool) Name() string   { return p.name }
func (p *ChunkPool) ChunkSize() int { return p.chunkSize }

// LastCompletedFence returns the highest fence passed to ReclaimCompleted
func (p *ChunkPool) LastCompletedFence() uint64 {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	return p.lastCompletedFence
}

func (p *ChunkPool) sizeClass(size int) int {
	if size <= p.chunkSize {
		return p.chunkSize
	}
	return size
}

func (p *ChunkPool) growChunk(sizeClass int) (*Chunk, error) {
	block, err := p.heap.AllocateBlock(sizeClass)
	if err != nil {
		if cerrors.Is(err, ErrOutOfDeviceMemory) {
			return nil, cerrors.Wrapf(err, "chunk pool %q could not grow by %d", p.name, sizeClass)
		}
		return nil, cerrors.WithSecondaryError(
			cerrors.Wrapf(ErrOutOfDeviceMemory, "chunk pool %q could not grow by %d", p.name, sizeClass),
			err,
		)
	}

	chunk := chunkPool.Get().(*Chunk)
	// id is assigned when the chunk is registered under the lock
	chunk.init(block, sizeClass, sizeClass != p.chunkSize)
	return chunk, nil
}

func (p *ChunkPool) registerAfterLock(chunk *Chunk) {
	chunk.id = p.nextChunkID
	p.nextChunkID++
	p.chunks.Put(chunk.id, chunk)
}

func (p *ChunkPool) popFreeAfterLock(sizeClass int) *Chunk {
	free, ok := p.free.Get(sizeClass)
	if !ok || len(free) == 0 {
		return nil
	}

	chunk := free[len(free)-1]
	free[len(free)-1] = nil
	free = free[:len(free)-1]

	if len(free) == 0 {
		p.free.Delete(sizeClass)
	} else {
		p.free.Put(sizeClass, free)
	}

	return chunk
}

func (p *ChunkPool) pushFreeAfterLock(chunk *Chunk) {
	chunk.state = ChunkFree
	chunk.fence = 0
	chunk.reset()

	free, _ := p.free.Get(chunk.sizeClass)
	p.free.Put(chunk.sizeClass, append(free, chunk))
}

// AcquireChunk returns an empty chunk of at least size bytes. A free chunk of the matching
// size class is reused if there is one; otherwise the pool grows from the backing heap. A
// heap failure is always reported as ErrOutOfDeviceMemory.
func (p *ChunkPool) AcquireChunk(size int) (*Chunk, error) {
	p.logger.Debug("ChunkPool::AcquireChunk", slog.String("pool", p.name), slog.Int("size", size))

	err := memutils.CheckSize(size, "size")
	if err != nil {
		return nil, memutils.PreconditionFailed(err)
	}

	sizeClass := p.sizeClass(size)

	p.mutex.Lock()
	if p.destroyed {
		p.mutex.Unlock()
		return nil, cerrors.Wrapf(ErrPoolDestroyed, "chunk pool %q", p.name)
	}

	chunk := p.popFreeAfterLock(sizeClass)
	if chunk != nil {
		chunk.state = ChunkInUse
		p.inUseCount++
		p.mutex.Unlock()
		return chunk, nil
	}
	p.mutex.Unlock()

	chunk, err = p.growChunk(sizeClass)
	if err != nil {
		return nil, err
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.destroyed {
		p.heap.FreeBlock(chunk.block)
		chunkPool.Put(chunk)
		return nil, cerrors.Wrapf(ErrPoolDestroyed, "chunk pool %q", p.name)
	}

	p.registerAfterLock(chunk)
	p.inUseCount++
	return chunk, nil
}

// RetireChunk records that chunk is no longer written by the CPU and will be unused by the GPU
// once fence has completed. The chunk is not reused before ReclaimCompleted reports fence.
func (p *ChunkPool) RetireChunk(chunk *Chunk, fence uint64) error {
	p.logger.Debug("ChunkPool::RetireChunk", slog.String("pool", p.name), slog.Int("chunk", chunk.id))

	p.mutex.Lock()
	defer p.mutex.Unlock()

	owned, ok := p.chunks.Get(chunk.id)
	if !ok || owned != chunk {
		return memutils.PreconditionFailed(cerrors.Newf("chunk %d does not belong to chunk pool %q", chunk.id, p.name))
	}

	if chunk.state != ChunkInUse {
		return memutils.PreconditionFailed(cerrors.Newf("chunk %d retired while %s", chunk.id, chunk.state))
	}

	chunk.state = ChunkRetiring
	chunk.fence = fence
	p.inUseCount--

	index := slices.IndexFunc(p.retiring, func(c *Chunk) bool { return c.fence > fence })
	if index < 0 {
		index = len(p.retiring)
	}
	p.retiring = slices.Insert(p.retiring, index, chunk)

	return nil
}

// ReclaimCompleted moves every retiring chunk whose fence is at or below fence back to the
// free lists and returns how many were moved. A fence that does not advance past the previous
// call is ignored. The first call accepts any fence, including 0.
func (p *ChunkPool) ReclaimCompleted(fence uint64) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.fenceCompleted && fence <= p.lastCompletedFence {
		return 0
	}
	p.lastCompletedFence = fence
	p.fenceCompleted = true

	count := 0
	for count < len(p.retiring) && p.retiring[count].fence <= fence {
		p.pushFreeAfterLock(p.retiring[count])
		p.retiring[count] = nil
		count++
	}
	p.retiring = slices.Delete(p.retiring, 0, count)

	if count > 0 {
		p.logger.Debug("ChunkPool::ReclaimCompleted", slog.String("pool", p.name), slog.Uint64("fence", fence), slog.Int("reclaimed", count))
	}

	return count
}

// Reserve grows the pool by count free chunks of the standard size
func (p *ChunkPool) Reserve(count int) error {
	for i := 0; i < count; i++ {
		chunk, err := p.growChunk(p.chunkSize)
		if err != nil {
			return err
		}

		p.mutex.Lock()
		if p.destroyed {
			p.mutex.Unlock()
			p.heap.FreeBlock(chunk.block)
			chunkPool.Put(chunk)
			return cerrors.Wrapf(ErrPoolDestroyed, "chunk pool %q", p.name)
		}
		p.registerAfterLock(chunk)
		p.pushFreeAfterLock(chunk)
		p.mutex.Unlock()
	}

	return nil
}

func (p *ChunkPool) takeFreeAfterLock(keepStandard int) []*Chunk {
	var released []*Chunk

	var classes []int
	p.free.Iter(func(sizeClass int, _ []*Chunk) bool {
		classes = append(classes, sizeClass)
		return false
	})

	for _, sizeClass := range classes {
		free, _ := p.free.Get(sizeClass)

		keep := 0
		if sizeClass == p.chunkSize {
			keep = keepStandard
		}
		if len(free) <= keep {
			continue
		}

		for _, chunk := range free[keep:] {
			p.chunks.Delete(chunk.id)
			released = append(released, chunk)
		}

		if keep == 0 {
			p.free.Delete(sizeClass)
		} else {
			p.free.Put(sizeClass, slices.Clip(free[:keep]))
		}
	}

	return released
}

func (p *ChunkPool) freeChunks(chunks []*Chunk) {
	for _, chunk := range chunks {
		p.heap.FreeBlock(chunk.block)
		chunk.init(Block{}, 0, false)
		chunkPool.Put(chunk)
	}
}

func (p *ChunkPool) releaseFreeChunks() {
	p.mutex.Lock()
	released := p.takeFreeAfterLock(0)
	p.mutex.Unlock()

	p.freeChunks(released)
}

// Trim returns free chunks to the backing heap, keeping at most keep free chunks of the
// standard size. Free dedicated chunks are always released. It returns the number of chunks
// released.
func (p *ChunkPool) Trim(keep int) int {
	p.logger.Debug("ChunkPool::Trim", slog.String("pool", p.name), slog.Int("keep", keep))

	if keep < 0 {
		keep = 0
	}

	p.mutex.Lock()
	released := p.takeFreeAfterLock(keep)
	p.mutex.Unlock()

	p.freeChunks(released)
	return len(released)
}

// Destroy releases every chunk back to the backing heap. It fails with ErrChunksInUse, and
// leaves the pool intact, if any chunk is still in use or waiting on its fence.
func (p *ChunkPool) Destroy() error {
	p.logger.Debug("ChunkPool::Destroy", slog.String("pool", p.name))

	p.mutex.Lock()
	if p.destroyed {
		p.mutex.Unlock()
		return cerrors.Wrapf(ErrPoolDestroyed, "chunk pool %q", p.name)
	}

	if p.inUseCount > 0 || len(p.retiring) > 0 {
		p.chunks.Iter(func(_ int, chunk *Chunk) bool {
			if chunk.state != ChunkFree {
				p.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] chunk not returned to pool",
					slog.String("pool", p.name),
					slog.Int("chunk", chunk.id),
					slog.String("state", chunk.state.String()),
					slog.Uint64("fence", chunk.fence),
					slog.Int("highWater", chunk.HighWater()),
				)
			}
			return false
		})

		inUse, retiring := p.inUseCount, len(p.retiring)
		p.mutex.Unlock()
		return cerrors.Wrapf(ErrChunksInUse, "chunk pool %q has %d chunks in use and %d retiring", p.name, inUse, retiring)
	}

	released := p.takeFreeAfterLock(0)
	p.destroyed = true
	p.mutex.Unlock()

	p.freeChunks(released)
	return nil
}

// AddStatistics adds the pool's chunk totals and the space handed out from in-use and
// retiring chunks to stats
func (p *ChunkPool) AddStatistics(stats *memutils.Statistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.chunks.Iter(func(_ int, chunk *Chunk) bool {
		stats.ChunkCount++
		stats.ChunkBytes += chunk.block.Size
		stats.AllocationCount += chunk.AllocationCount()
		stats.AllocationBytes += chunk.HighWater()
		return false
	})
}

// AddDetailedStatistics adds the pool's chunks, broken down by lifecycle state, to stats
func (p *ChunkPool) AddDetailedStatistics(stats *memutils.DetailedStatistics) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.chunks.Iter(func(_ int, chunk *Chunk) bool {
		stats.AddChunk(chunk.block.Size)
		stats.AllocationCount += chunk.AllocationCount()
		stats.AllocationBytes += chunk.HighWater()

		switch chunk.state {
		case ChunkInUse:
			stats.InUseChunkCount++
		case ChunkRetiring:
			stats.RetiringChunkCount++
		case ChunkFree:
			stats.FreeChunkCount++
		}
		return false
	})
}

// Validate verifies the bookkeeping of the pool's chunk lists
func (p *ChunkPool) Validate() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	inUse, retiring, free := 0, 0, 0
	var err error
	p.chunks.Iter(func(id int, chunk *Chunk) bool {
		if chunk.id != id {
			err = cerrors.Newf("chunk %d is stored under id %d", chunk.id, id)
			return true
		}

		switch chunk.state {
		case ChunkInUse:
			inUse++
		case ChunkRetiring:
			retiring++
		case ChunkFree:
			free++
		}
		return false
	})
	if err != nil {
		return err
	}

	freeListed := 0
	p.free.Iter(func(sizeClass int, chunks []*Chunk) bool {
		for _, chunk := range chunks {
			if chunk.sizeClass != sizeClass || chunk.state != ChunkFree {
				err = cerrors.Newf("chunk %d of size class %d in state %s is on the free list for size %d", chunk.id, chunk.sizeClass, chunk.state, sizeClass)
				return true
			}
		}
		freeListed += len(chunks)
		return false
	})
	if err != nil {
		return err
	}

	if inUse != p.inUseCount {
		return cerrors.Newf("%d chunks are in use but the pool counts %d", inUse, p.inUseCount)
	}
	if retiring != len(p.retiring) {
		return cerrors.Newf("%d chunks are retiring but %d are queued", retiring, len(p.retiring))
	}
	if free != freeListed {
		return cerrors.Newf("%d chunks are free but %d are on free lists", free, freeListed)
	}

	for i := 1; i < len(p.retiring); i++ {
		if p.retiring[i-1].fence > p.retiring[i].fence {
			return cerrors.Newf("retire queue is out of fence order at %d", i)
		}
	}

	return nil
}

// PrintDetailedMap writes the pool's configuration and every chunk it owns as a JSON object
func (p *ChunkPool) PrintDetailedMap(writer *jwriter.Writer) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	objState := writer.Object()
	defer objState.End()

	objState.Name("Name").String(p.name)
	objState.Name("ChunkSize").Int(p.chunkSize)
	objState.Name("LastCompletedFence").Float64(float64(p.lastCompletedFence))

	ids := make([]int, 0, p.chunks.Count())
	p.chunks.Iter(func(id int, _ *Chunk) bool {
		ids = append(ids, id)
		return false
	})
	slices.Sort(ids)

	chunksObj := objState.Name("Chunks").Object()
	for _, id := range ids {
		chunk, _ := p.chunks.Get(id)

		chunkObj := chunksObj.Name(strconv.Itoa(id)).Object()
		chunkObj.Name("Offset").Int(chunk.block.Offset)
		chunkObj.Name("Size").Int(chunk.block.Size)
		chunkObj.Name("State").String(chunk.state.String())
		chunkObj.Name("HighWater").Int(chunk.HighWater())
		chunkObj.Name("Allocations").Int(chunk.AllocationCount())
		if chunk.state == ChunkRetiring {
			chunkObj.Name("Fence").Float64(float64(chunk.fence))
		}
		if chunk.dedicated {
			chunkObj.Name("Dedicated").Bool(true)
		}
		chunkObj.End()
	}
	chunksObj.End()
}
