package defrag

// DefragmentationStats contains basic metrics for defragmentation over time
type DefragmentationStats struct {
	// BytesMoved is the number of bytes that have been successfully relocated
	BytesMoved int
	// BytesFreed is the number of bytes released by moves that were resolved with
	// DefragmentationMoveDestroy
	BytesFreed int
	// AllocationsMoved is the number of successful relocations
	AllocationsMoved int
	// AllocationsFreed is the number of allocations destroyed instead of relocated
	AllocationsFreed int
}

func (s *DefragmentationStats) Add(stats DefragmentationStats) {
	s.BytesMoved += stats.BytesMoved
	s.BytesFreed += stats.BytesFreed
	s.AllocationsMoved += stats.AllocationsMoved
	s.AllocationsFreed += stats.AllocationsFreed
}
