package memutils

import "math"

// Statistics is a cheap summary of a chunk pool or sub-allocator: how many chunks it
// holds and how much of them has been handed out
type Statistics struct {
	ChunkCount      int
	AllocationCount int
	ChunkBytes      int
	AllocationBytes int
}

func (s *Statistics) Clear() {
	s.ChunkCount = 0
	s.AllocationCount = 0
	s.ChunkBytes = 0
	s.AllocationBytes = 0
}

func (s *Statistics) AddStatistics(other *Statistics) {
	s.ChunkCount += other.ChunkCount
	s.AllocationCount += other.AllocationCount
	s.ChunkBytes += other.ChunkBytes
	s.AllocationBytes += other.AllocationBytes
}

// DetailedStatistics extends Statistics with the lifecycle breakdown of chunks and the
// range of chunk sizes seen
type DetailedStatistics struct {
	Statistics
	InUseChunkCount    int
	RetiringChunkCount int
	FreeChunkCount     int
	ChunkSizeMin       int
	ChunkSizeMax       int
}

func (s *DetailedStatistics) Clear() {
	s.Statistics.Clear()
	s.InUseChunkCount = 0
	s.RetiringChunkCount = 0
	s.FreeChunkCount = 0
	s.ChunkSizeMin = math.MaxInt
	s.ChunkSizeMax = 0
}

// AddChunk records one chunk of the given size. The caller increments the lifecycle
// counter that matches the chunk's state.
func (s *DetailedStatistics) AddChunk(size int) {
	s.ChunkCount++
	s.ChunkBytes += size

	if size < s.ChunkSizeMin {
		s.ChunkSizeMin = size
	}

	if size > s.ChunkSizeMax {
		s.ChunkSizeMax = size
	}
}

func (s *DetailedStatistics) AddDetailedStatistics(other *DetailedStatistics) {
	s.Statistics.AddStatistics(&other.Statistics)
	s.InUseChunkCount += other.InUseChunkCount
	s.RetiringChunkCount += other.RetiringChunkCount
	s.FreeChunkCount += other.FreeChunkCount

	if other.ChunkSizeMin < s.ChunkSizeMin {
		s.ChunkSizeMin = other.ChunkSizeMin
	}

	if other.ChunkSizeMax > s.ChunkSizeMax {
		s.ChunkSizeMax = other.ChunkSizeMax
	}
}
