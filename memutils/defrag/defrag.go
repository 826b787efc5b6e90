// Package defrag contains the bookkeeping shared by compaction runs: the moves collected for a
// pass, the per-pass relocation budget, and statistics accumulated over a run.
package defrag

// DefragmentationMoveOperation tells the allocator what to do with a collected move when the
// pass ends
type DefragmentationMoveOperation uint32

const (
	// DefragmentationMoveCopy relocates the allocation: its contents are copied to the destination
	// block and its old block is freed. This is the default.
	DefragmentationMoveCopy DefragmentationMoveOperation = iota
	// DefragmentationMoveIgnore leaves the allocation where it is and releases the destination block
	DefragmentationMoveIgnore
	// DefragmentationMoveDestroy frees the allocation outright, along with the destination block
	DefragmentationMoveDestroy
)

var defragmentationMoveOperationMapping = map[DefragmentationMoveOperation]string{
	DefragmentationMoveCopy:    "DefragmentationMoveCopy",
	DefragmentationMoveIgnore:  "DefragmentationMoveIgnore",
	DefragmentationMoveDestroy: "DefragmentationMoveDestroy",
}

func (o DefragmentationMoveOperation) String() string {
	return defragmentationMoveOperationMapping[o]
}

// DefragmentationMove is a single relocation collected during a pass. The destination block is
// reserved from the moment the move is collected until the pass ends.
type DefragmentationMove[T any] struct {
	MoveOperation DefragmentationMoveOperation

	Size          int
	SrcOffset     int
	DstOffset     int
	SrcAllocation *T
}
