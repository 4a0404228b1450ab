package buffer

import (
	"dataserver/blist"
	"dataserver/vm"
)

// listTag names the list a block belongs to.
type listTag uint8

const (
	noList listTag = iota
	lockedList
	unlockedList
	freeList
	fixedList
)

func (t listTag) String() string {
	switch t {
	case lockedList:
		return "locked"
	case unlockedList:
		return "unlocked"
	case freeList:
		return "free"
	case fixedList:
		return "fixed"
	default:
		return "none"
	}
}

// blockHead is the bookkeeping record of one pool block. Headers live in a table indexed by block id rather than in
// the block memory, so a page handed to a reader is never overlapped by pool metadata.
type blockHead struct {
	blist.Node

	block   uint32  // file block held by the pool block
	pins    uint64  // bit i is set while the thread with registry slot i holds the block
	list    listTag // list the block is linked in
	loading bool    // block is being filled from the file; it is in no list and only its loader holds it
	access  uint64  // pool clock at the last lock
	freq    uint32  // number of locks since the block was filled
}

func (h *blockHead) reset() {
	*h = blockHead{}
}

type heads []blockHead

func (h heads) Node(id vm.BlockID) *blist.Node {
	return &h[id].Node
}
