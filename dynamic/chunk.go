package dynamic

import (
	"sync"
	"sync/atomic"

	"github.com/vkngwrapper/gpucore/memutils"
)

// ChunkState is the lifecycle stage of a chunk within its pool
type ChunkState int32

const (
	ChunkFree ChunkState = iota
	ChunkInUse
	ChunkRetiring
)

var chunkStateMapping = map[ChunkState]string{
	ChunkFree:     "Free",
	ChunkInUse:    "InUse",
	ChunkRetiring: "Retiring",
}

func (s ChunkState) String() string {
	str, ok := chunkStateMapping[s]
	if !ok {
		return "unknown ChunkState"
	}

	return str
}

var chunkPool = sync.Pool{
	New: func() any {
		return &Chunk{}
	},
}

// Chunk is a range of a backing heap that is bump-allocated during a single frame. It is
// acquired from a ChunkPool, retired with the fence of the frame that used it, and only
// handed out again once that fence has completed.
type Chunk struct {
	id        int
	block     Block
	sizeClass int
	dedicated bool

	highWater       atomic.Int64
	allocationCount atomic.Int32

	// Guarded by the owning pool's mutex
	state ChunkState
	fence uint64
}

func (c *Chunk) init(block Block, sizeClass int, dedicated bool) {
	c.id = 0
	c.block = block
	c.sizeClass = sizeClass
	c.dedicated = dedicated
	c.state = ChunkInUse
	c.fence = 0
	c.reset()
}

func (c *Chunk) reset() {
	c.highWater.Store(0)
	c.allocationCount.Store(0)
}

func (c *Chunk) ID() int { return c.id }

// Offset returns the chunk's base offset within the backing heap
func (c *Chunk) Offset() int { return c.block.Offset }
func (c *Chunk) Size() int   { return c.block.Size }

// Dedicated returns true if the chunk was created for a single oversized request
func (c *Chunk) Dedicated() bool { return c.dedicated }

// HighWater returns the number of bytes from the start of the chunk that have been handed out
func (c *Chunk) HighWater() int {
	return int(c.highWater.Load())
}

// Remaining returns the unused space at the end of the chunk
func (c *Chunk) Remaining() int {
	return c.block.Size - c.HighWater()
}

func (c *Chunk) AllocationCount() int {
	return int(c.allocationCount.Load())
}

// bump reserves size bytes at the next offset whose position in the heap is aligned to
// alignment. Shared chunks use a CAS loop so that concurrent callers never receive overlapping
// ranges.
func (c *Chunk) bump(size int, alignment uint, shared bool) (int, bool) {
	for {
		current := c.highWater.Load()
		offset := memutils.AlignUp(c.block.Offset+int(current), alignment) - c.block.Offset
		end := offset + size

		if end > c.block.Size {
			return 0, false
		}

		if !shared {
			c.highWater.Store(int64(end))
		} else if !c.highWater.CompareAndSwap(current, int64(end)) {
			continue
		}

		c.allocationCount.Add(1)
		return offset, true
	}
}
