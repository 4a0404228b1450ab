package vm

import "sort"

// MoveFunc is called by Defragment before a block is relocated. It returns false if the block can not be moved right
// now, in which case nothing changes for that block. The allocator copies the block bytes itself; the callback only
// has to update whatever the caller keeps about the block.
type MoveFunc func(from, to BlockID) bool

// Defragment packs blocks of the least occupied mixed arenas into the most occupied ones. Arenas that become empty
// are decommitted and go to the free arena list. It returns the number of moved blocks and freed arenas.
//
// The caller must guarantee nobody holds a reference into a block that move agrees to relocate.
func (a *Allocator) Defragment(move MoveFunc) (moved int, freed int, err error) {
	if a.mixed.count < 2 {
		return 0, 0, nil
	}

	mixed := make([]int, 0, a.mixed.count)
	a.mixed.forEach(a.arenas, func(i int) {
		mixed = append(mixed, i)
	})

	// sparsest first; on ties the higher arena is emptied so blocks drift towards the start of the reservation
	sort.Slice(mixed, func(x, y int) bool {
		cx, cy := a.arenas[mixed[x]].count(), a.arenas[mixed[y]].count()
		if cx != cy {
			return cx < cy
		}
		return mixed[x] > mixed[y]
	})

	lo, hi := 0, len(mixed)-1
	for lo < hi {
		si := mixed[lo]
		src := &a.arenas[si]
		for slot := 0; slot < a.geo.ArenaBlocks && lo < hi; slot++ {
			if !src.isSet(slot) {
				continue
			}

			di := mixed[hi]
			dst := &a.arenas[di]
			dslot := dst.freeSlot()

			from, to := a.geo.MakeID(si, slot), a.geo.MakeID(di, dslot)
			if !move(from, to) {
				continue
			}

			copy(a.block(di, dslot), a.block(si, slot))
			src.mask &^= 1 << slot
			dst.mask |= 1 << dslot
			moved++

			if dst.isFull() {
				a.mixed.remove(a.arenas, di)
				hi--
			}
		}

		if src.isEmpty() {
			a.mixed.remove(a.arenas, si)
			if derr := a.decommit(si); derr != nil && err == nil {
				err = derr
			}
			a.free.push(a.arenas, si)
			freed++
		}
		lo++
	}

	return moved, freed, err
}
