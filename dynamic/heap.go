package dynamic

//go:generate mockgen -source heap.go -destination ./mocks/heap.go -package mock_dynamic

// Block is a contiguous range of a backing heap
type Block struct {
	Offset int
	Size   int
}

// End returns the offset one past the last byte of the block
func (b Block) End() int {
	return b.Offset + b.Size
}

// Heap is the backing store that chunks are carved from: an upload buffer, a GPU-visible
// descriptor heap, or anything else addressed by offset. AllocateBlock may be slow and is
// never called while a chunk pool holds its lock.
type Heap interface {
	AllocateBlock(size int) (Block, error)
	FreeBlock(block Block)
}
