package vm

import (
	"fmt"
	"math/bits"
)

// Validate checks arena bookkeeping: list membership matches occupancy, counters match masks and the address index
// holds exactly the committed arenas.
func (a *Allocator) Validate() error {
	used, committed := 0, 0
	mixed, free := 0, 0
	for i := range a.arenas {
		ar := &a.arenas[i]
		if ar.mask&^ar.full != 0 {
			return fmt.Errorf("%w: arena %d mask %016b outside %016b", ErrInvariant, i, ar.mask, ar.full)
		}
		used += bits.OnesCount16(ar.mask)
		if ar.mem != nil {
			committed++
		} else if !ar.isEmpty() {
			return fmt.Errorf("%w: arena %d has blocks but no memory", ErrInvariant, i)
		}

		switch {
		case ar.isEmpty():
			if ar.on != onFreeList {
				return fmt.Errorf("%w: empty arena %d is not on the free list", ErrInvariant, i)
			}
		case ar.isFull():
			if ar.on != onNoList {
				return fmt.Errorf("%w: full arena %d is on a list", ErrInvariant, i)
			}
		default:
			if ar.on != onMixedList {
				return fmt.Errorf("%w: mixed arena %d is not on the mixed list", ErrInvariant, i)
			}
		}
	}

	seen := map[int]bool{}
	check := func(l *arenaList, n *int) error {
		prev := nilArena
		for i := l.head; i != nilArena; i = a.arenas[i].next {
			if seen[i] {
				return fmt.Errorf("%w: arena %d reached twice", ErrInvariant, i)
			}
			seen[i] = true
			if a.arenas[i].prev != prev {
				return fmt.Errorf("%w: arena %d has a bad back link", ErrInvariant, i)
			}
			prev = i
			*n++
		}
		if *n != l.count {
			return fmt.Errorf("%w: list holds %d arenas, count is %d", ErrInvariant, *n, l.count)
		}
		return nil
	}
	if err := check(&a.mixed, &mixed); err != nil {
		return err
	}
	if err := check(&a.free, &free); err != nil {
		return err
	}

	if used != a.used {
		return fmt.Errorf("%w: %d blocks set in masks, used is %d", ErrInvariant, used, a.used)
	}
	if a.index.len() != committed {
		return fmt.Errorf("%w: index holds %d arenas, %d committed", ErrInvariant, a.index.len(), committed)
	}
	if a.used+a.UnusedBlocks() != a.blocks {
		return fmt.Errorf("%w: used + unused != total", ErrInvariant)
	}
	return nil
}
