package vm

import (
	"fmt"
	"math"

	"dataserver/common"
)

type options struct {
	committed bool
}

type Option func(*options)

// WithCommitted commits every arena at reservation time instead of on first use.
func WithCommitted() Option {
	return func(o *options) {
		o.committed = true
	}
}

// Allocator hands out fixed size blocks from a reserved range of virtual memory. Memory is committed an arena at a
// time when the first block of an arena is taken and decommitted when the last one is released.
//
// Allocator is not safe for concurrent use; the buffer pool serializes access with its own lock.
type Allocator struct {
	geo      Geometry
	region   region
	arenas   []arena // len(arenas) is the arena break, cap is the number of reserved arenas
	reserved int
	blocks   int // number of blocks that may be allocated
	used     int
	mixed    arenaList
	free     arenaList
	index    *addrIndex
}

// Reserve reserves address space for capacity bytes rounded up to whole arenas. No memory is committed unless
// WithCommitted is given.
func Reserve(capacity int64, g Geometry, opts ...Option) (*Allocator, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity %d", ErrReservationFailed, capacity)
	}

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	blocks := common.RoundUpDiv(capacity, int64(g.BlockSize()))
	arenas := common.RoundUpDiv(blocks, int64(g.ArenaBlocks))
	if arenas*int64(g.ArenaBlocks) >= math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d blocks exceed block id space", ErrReservationFailed, blocks)
	}

	r, err := reserveRegion(int(arenas)*g.ArenaSize(), g.ArenaSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrReservationFailed, err)
	}

	a := &Allocator{
		geo:      g,
		region:   r,
		arenas:   make([]arena, 0, arenas),
		reserved: int(arenas),
		blocks:   int(blocks),
		mixed:    newArenaList(onMixedList),
		free:     newArenaList(onFreeList),
		index:    newAddrIndex(),
	}

	if o.committed {
		for a.ArenaBreak() < a.reserved {
			i, err := a.grow()
			if err != nil {
				_ = a.Close()
				return nil, err
			}
			a.free.push(a.arenas, i)
		}
	}
	return a, nil
}

func (a *Allocator) Geometry() Geometry {
	return a.geo
}

// fullMask returns the occupancy mask of arena i when all of its usable slots are taken.
func (a *Allocator) fullMask(i int) uint16 {
	n := a.blocks - i*a.geo.ArenaBlocks
	if n > a.geo.ArenaBlocks {
		n = a.geo.ArenaBlocks
	}
	return uint16((uint32(1) << n) - 1)
}

// grow extends the arena break by one committed arena.
func (a *Allocator) grow() (int, error) {
	i := len(a.arenas)
	a.arenas = append(a.arenas, arena{full: a.fullMask(i), prev: nilArena, next: nilArena})
	if err := a.commit(i); err != nil {
		a.arenas = a.arenas[:i]
		return nilArena, err
	}
	return i, nil
}

func (a *Allocator) commit(i int) error {
	ar := &a.arenas[i]
	if ar.mem != nil {
		return nil
	}
	mem, err := a.region.commit(i)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReservationFailed, err)
	}
	ar.mem = mem
	a.index.insert(i, mem)
	return nil
}

func (a *Allocator) decommit(i int) error {
	ar := &a.arenas[i]
	if ar.mem == nil {
		return nil
	}
	a.index.remove(ar.mem)
	mem := ar.mem
	ar.mem = nil
	if err := a.region.decommit(i, mem); err != nil {
		return fmt.Errorf("%w: %v", ErrReservationFailed, err)
	}
	return nil
}

// take marks slot of arena i as allocated, keeps the mixed list up to date and returns a zeroed block.
func (a *Allocator) take(i, slot int) BlockID {
	ar := &a.arenas[i]
	wasEmpty := ar.isEmpty()
	ar.mask |= 1 << slot
	a.used++

	switch {
	case ar.isFull() && !wasEmpty:
		a.mixed.remove(a.arenas, i)
	case !ar.isFull() && wasEmpty:
		a.mixed.push(a.arenas, i)
	}

	id := a.geo.MakeID(i, slot)
	clear(a.block(i, slot))
	return id
}

// AllocBlock returns a committed, zero filled block. Partially used arenas are filled first so that the number of
// committed arenas stays small, then previously released arenas are reused, then the arena break is moved.
func (a *Allocator) AllocBlock() (BlockID, error) {
	if i := a.mixed.head; i != nilArena {
		return a.take(i, a.arenas[i].freeSlot()), nil
	}

	if i := a.free.pop(a.arenas); i != nilArena {
		if err := a.commit(i); err != nil {
			a.free.push(a.arenas, i)
			return NullBlock, err
		}
		return a.take(i, 0), nil
	}

	if a.ArenaBreak() < a.reserved {
		i, err := a.grow()
		if err != nil {
			return NullBlock, err
		}
		return a.take(i, 0), nil
	}

	return NullBlock, ErrExhausted
}

func (a *Allocator) locate(id BlockID) (int, int, bool) {
	if id.IsNull() {
		return 0, 0, false
	}
	i, slot := a.geo.Arena(id), a.geo.Slot(id)
	if i >= len(a.arenas) || !a.arenas[i].isSet(slot) {
		return 0, 0, false
	}
	return i, slot, true
}

// Release returns a block to its arena. When the arena becomes empty its memory is given back to the OS and the arena
// goes to the free arena list.
func (a *Allocator) Release(id BlockID) error {
	i, slot, ok := a.locate(id)
	if !ok {
		if common.Checked {
			panic(fmt.Sprintf("vm: release of unallocated block %d", id))
		}
		return fmt.Errorf("%w: %d", ErrBadBlock, id)
	}

	if common.Checked {
		clear(a.block(i, slot))
	}

	ar := &a.arenas[i]
	wasFull := ar.isFull()
	ar.mask &^= 1 << slot
	a.used--

	if ar.isEmpty() {
		if !wasFull {
			a.mixed.remove(a.arenas, i)
		}
		err := a.decommit(i)
		a.free.push(a.arenas, i)
		return err
	}

	if wasFull {
		a.mixed.push(a.arenas, i)
	}
	return nil
}

func (a *Allocator) block(i, slot int) []byte {
	bs := a.geo.BlockSize()
	off := slot * bs
	return a.arenas[i].mem[off : off+bs : off+bs]
}

// Block returns the memory of an allocated block or nil if id is not allocated.
func (a *Allocator) Block(id BlockID) []byte {
	i, slot, ok := a.locate(id)
	if !ok {
		return nil
	}
	return a.block(i, slot)
}

// BlockID resolves the base address of an allocated block to its id.
func (a *Allocator) BlockID(addr uintptr) (BlockID, bool) {
	item, ok := a.index.find(addr)
	if !ok {
		return NullBlock, false
	}

	off := addr - item.base
	bs := uintptr(a.geo.BlockSize())
	if off >= uintptr(a.geo.ArenaSize()) || off%bs != 0 {
		return NullBlock, false
	}

	slot := int(off / bs)
	if !a.arenas[item.arena].isSet(slot) {
		return NullBlock, false
	}
	return a.geo.MakeID(item.arena, slot), true
}

// BlockOf is BlockID for a slice that starts at a block boundary.
func (a *Allocator) BlockOf(b []byte) (BlockID, bool) {
	if len(b) == 0 {
		return NullBlock, false
	}
	return a.BlockID(baseOf(b))
}

// IsAllocated reports whether id refers to an allocated block.
func (a *Allocator) IsAllocated(id BlockID) bool {
	_, _, ok := a.locate(id)
	return ok
}

// MaxBlockID is the largest id the allocator can ever hand out.
func (a *Allocator) MaxBlockID() BlockID {
	return BlockID(a.reserved * a.geo.ArenaBlocks)
}

func (a *Allocator) TotalBlocks() int {
	return a.blocks
}

func (a *Allocator) UsedBlocks() int {
	return a.used
}

func (a *Allocator) UnusedBlocks() int {
	return a.blocks - a.used
}

func (a *Allocator) Capacity() int64 {
	return int64(a.blocks) * int64(a.geo.BlockSize())
}

func (a *Allocator) UsedSize() int64 {
	return int64(a.used) * int64(a.geo.BlockSize())
}

func (a *Allocator) UnusedSize() int64 {
	return a.Capacity() - a.UsedSize()
}

// CommittedSize is the memory backed by the OS right now.
func (a *Allocator) CommittedSize() int64 {
	return int64(a.index.len()) * int64(a.geo.ArenaSize())
}

// ArenaBreak is the number of arenas ever touched.
func (a *Allocator) ArenaBreak() int {
	return len(a.arenas)
}

func (a *Allocator) MixedArenas() int {
	return a.mixed.count
}

func (a *Allocator) FreeArenas() int {
	return a.free.count
}

// ArenaUsage returns the number of allocated blocks in arena i.
func (a *Allocator) ArenaUsage(i int) int {
	if i >= len(a.arenas) {
		return 0
	}
	return a.arenas[i].count()
}

// Close releases the reservation. Blocks must not be used afterwards.
func (a *Allocator) Close() error {
	if a.region == nil {
		return nil
	}
	err := a.region.release()
	a.region = nil
	for i := range a.arenas {
		a.arenas[i].mem = nil
	}
	a.index = newAddrIndex()
	return err
}
