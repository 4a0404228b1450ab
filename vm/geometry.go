package vm

import (
	"fmt"
	"os"

	"dataserver/common"
)

// MaxArenaBlocks is the largest number of blocks an arena can hold; occupancy is a 16 bit mask.
const MaxArenaBlocks = 16

// Geometry describes page, block and arena sizes. A block is BlockPages consecutive pages, an arena is ArenaBlocks
// consecutive blocks.
type Geometry struct {
	PageSize    int
	BlockPages  int
	ArenaBlocks int
}

func DefaultGeometry() Geometry {
	return Geometry{
		PageSize:    common.DefaultPageSize,
		BlockPages:  common.DefaultBlockPages,
		ArenaBlocks: common.DefaultArenaBlocks,
	}
}

func (g Geometry) BlockSize() int {
	return g.PageSize * g.BlockPages
}

func (g Geometry) ArenaSize() int {
	return g.BlockSize() * g.ArenaBlocks
}

func (g Geometry) Validate() error {
	if g.PageSize < 512 || !common.IsPowerOfTwo(int64(g.PageSize)) {
		return fmt.Errorf("%w: page size %d", ErrBadGeometry, g.PageSize)
	}
	if g.BlockPages < 1 || g.BlockPages > 64 {
		return fmt.Errorf("%w: %d pages per block", ErrBadGeometry, g.BlockPages)
	}
	if g.ArenaBlocks < 1 || g.ArenaBlocks > MaxArenaBlocks {
		return fmt.Errorf("%w: %d blocks per arena", ErrBadGeometry, g.ArenaBlocks)
	}
	// arenas are committed and decommitted with OS page granularity
	if ps := os.Getpagesize(); g.ArenaSize()%ps != 0 {
		return fmt.Errorf("%w: arena size %d is not a multiple of the os page size %d", ErrBadGeometry,
			g.ArenaSize(), ps)
	}
	return nil
}

// BlockID is a dense identifier of an allocated block. It encodes the arena index and the slot inside the arena;
// zero is the null id.
type BlockID uint32

const NullBlock BlockID = 0

func (g Geometry) MakeID(arena, slot int) BlockID {
	return BlockID(arena*g.ArenaBlocks + slot + 1)
}

// Arena returns the index of the arena holding the block.
func (g Geometry) Arena(id BlockID) int {
	return int(id-1) / g.ArenaBlocks
}

// Slot returns the block's position inside its arena.
func (g Geometry) Slot(id BlockID) int {
	return int(id-1) % g.ArenaBlocks
}

func (id BlockID) IsNull() bool {
	return id == NullBlock
}
