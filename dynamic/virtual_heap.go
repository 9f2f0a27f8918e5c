package dynamic

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	cerrors "github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gpucore/internal/utils"
	"github.com/vkngwrapper/gpucore/memutils"
	"golang.org/x/exp/slices"
)

// VirtualHeap is a Heap over a fixed range of offsets, such as a GPU-visible descriptor heap
// or a persistently mapped upload buffer created once at startup. Blocks are placed first-fit
// and freed blocks are merged with their free neighbors.
//
// An optional budget caps the bytes handed out below the heap's capacity.
type VirtualHeap struct {
	logger    *slog.Logger
	capacity  int
	budget    int
	alignment uint

	blockBytes int64
	blockCount int32

	mutex sync.Mutex
	// free holds the unused ranges sorted by offset, never adjacent to one another
	free []Block
}

var _ Heap = &VirtualHeap{}

// NewVirtualHeap creates a heap of capacity bytes (or descriptors). Every block is aligned
// to alignment, which must be a power of two. A budget of zero or less means capacity.
func NewVirtualHeap(logger *slog.Logger, capacity int, alignment uint, budget int) (*VirtualHeap, error) {
	err := memutils.CheckSize(capacity, "capacity")
	if err != nil {
		return nil, err
	}

	err = memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}

	if budget <= 0 || budget > capacity {
		budget = capacity
	}

	return &VirtualHeap{
		logger:    utils.LoggerOrDiscard(logger),
		capacity:  capacity,
		budget:    budget,
		alignment: alignment,
		free:      []Block{{Offset: 0, Size: capacity}},
	}, nil
}

func (h *VirtualHeap) Capacity() int { return h.capacity }
func (h *VirtualHeap) Budget() int   { return h.budget }

// AllocatedBytes returns the total size of the blocks currently handed out
func (h *VirtualHeap) AllocatedBytes() int {
	return int(atomic.LoadInt64(&h.blockBytes))
}

// BlockCount returns the number of blocks currently handed out
func (h *VirtualHeap) BlockCount() int {
	return int(atomic.LoadInt32(&h.blockCount))
}

func (h *VirtualHeap) addBlockWithBudget(size int) error {
	for {
		currentVal := atomic.LoadInt64(&h.blockBytes)
		targetVal := currentVal + int64(size)

		if targetVal > int64(h.budget) {
			return cerrors.Wrapf(ErrOutOfDeviceMemory, "%d bytes requested with %d of %d in use", size, currentVal, h.budget)
		}

		if atomic.CompareAndSwapInt64(&h.blockBytes, currentVal, targetVal) {
			break
		}
	}

	atomic.AddInt32(&h.blockCount, 1)
	return nil
}

func (h *VirtualHeap) removeBlock(size int) {
	newVal := atomic.AddInt64(&h.blockBytes, int64(-size))
	if newVal < 0 {
		panic(fmt.Sprintf("virtual heap block bytes went negative: %d", newVal))
	}

	newCountVal := atomic.AddInt32(&h.blockCount, -1)
	if newCountVal < 0 {
		panic(fmt.Sprintf("virtual heap block count went negative: %d", newCountVal))
	}
}

// AllocateBlock reserves size bytes, rounded up to the heap's alignment. It fails with
// ErrOutOfDeviceMemory when the budget is exhausted or no free range is large enough.
func (h *VirtualHeap) AllocateBlock(size int) (block Block, err error) {
	h.logger.Debug("VirtualHeap::AllocateBlock", slog.Int("size", size))

	err = memutils.CheckSize(size, "size")
	if err != nil {
		return Block{}, err
	}

	if size > h.capacity {
		return Block{}, cerrors.Wrapf(ErrOutOfDeviceMemory, "%d bytes requested from a heap of %d", size, h.capacity)
	}
	size = memutils.AlignUp(size, h.alignment)

	err = h.addBlockWithBudget(size)
	if err != nil {
		return Block{}, err
	}
	defer func() {
		// If we failed out, roll back the budget
		if err != nil {
			h.removeBlock(size)
		}
	}()

	h.mutex.Lock()
	defer h.mutex.Unlock()

	index := slices.IndexFunc(h.free, func(r Block) bool { return r.Size >= size })
	if index < 0 {
		return Block{}, cerrors.Wrapf(ErrOutOfDeviceMemory, "no free range of %d bytes in a heap of %d", size, h.capacity)
	}

	block = Block{Offset: h.free[index].Offset, Size: size}
	if h.free[index].Size == size {
		h.free = slices.Delete(h.free, index, index+1)
	} else {
		h.free[index].Offset += size
		h.free[index].Size -= size
	}

	return block, nil
}

// FreeBlock returns a block obtained from AllocateBlock to the heap
func (h *VirtualHeap) FreeBlock(block Block) {
	h.logger.Debug("VirtualHeap::FreeBlock", slog.Int("offset", block.Offset), slog.Int("size", block.Size))

	h.mutex.Lock()
	defer h.mutex.Unlock()

	index := slices.IndexFunc(h.free, func(r Block) bool { return r.Offset > block.Offset })
	if index < 0 {
		index = len(h.free)
	}

	if index > 0 && h.free[index-1].End() > block.Offset {
		panic(fmt.Sprintf("freed block [%d,+%d) overlaps a free range", block.Offset, block.Size))
	}
	if index < len(h.free) && block.End() > h.free[index].Offset {
		panic(fmt.Sprintf("freed block [%d,+%d) overlaps a free range", block.Offset, block.Size))
	}

	mergePrev := index > 0 && h.free[index-1].End() == block.Offset
	mergeNext := index < len(h.free) && block.End() == h.free[index].Offset

	switch {
	case mergePrev && mergeNext:
		h.free[index-1].Size += block.Size + h.free[index].Size
		h.free = slices.Delete(h.free, index, index+1)
	case mergePrev:
		h.free[index-1].Size += block.Size
	case mergeNext:
		h.free[index].Offset = block.Offset
		h.free[index].Size += block.Size
	default:
		h.free = slices.Insert(h.free, index, block)
	}

	h.removeBlock(block.Size)
}

// Validate verifies that the free ranges are sorted, disjoint, and account for every byte
// not handed out
func (h *VirtualHeap) Validate() error {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	freeBytes := 0
	for i, r := range h.free {
		if r.Size <= 0 {
			return cerrors.Newf("free range %d has size %d", i, r.Size)
		}
		if i > 0 && h.free[i-1].End() >= r.Offset {
			return cerrors.Newf("free ranges %d and %d are out of order or adjacent", i-1, i)
		}
		freeBytes += r.Size
	}

	if freeBytes+h.AllocatedBytes() != h.capacity {
		return cerrors.Newf("%d free bytes and %d allocated bytes do not add up to capacity %d", freeBytes, h.AllocatedBytes(), h.capacity)
	}

	return nil
}
