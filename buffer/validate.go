package buffer

import (
	"fmt"

	"dataserver/blist"
	"dataserver/vm"
)

// Validate checks the pool bookkeeping: list structure, list tags, the page index, pins and the allocator. It is
// used by tests and diagnostics.
func (p *Pool) Validate() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}

	if err := p.alloc.Validate(); err != nil {
		return err
	}

	members := 0
	for _, tag := range []listTag{lockedList, unlockedList, freeList, fixedList} {
		l := p.listOf(tag)
		if err := l.Validate(); err != nil {
			return err
		}

		var err error
		l.ForEach(func(id vm.BlockID) bool {
			members++
			err = p.validateBlock(id, tag)
			return err == nil
		}, false)
		if err != nil {
			return err
		}
	}

	loading := 0
	for fb, id := range p.index {
		if id == vm.NullBlock {
			continue
		}
		h := &p.heads[id]
		if int(h.block) != fb {
			return fmt.Errorf("%w: file block %d maps to block %d holding file block %d", ErrInvariant, fb, id, h.block)
		}
		if h.loading {
			loading++
		} else if h.list == freeList || h.list == noList {
			return fmt.Errorf("%w: file block %d maps to block %d in list %s", ErrInvariant, fb, id, h.list)
		}
	}

	if used := p.alloc.UsedBlocks(); members+loading != used {
		return fmt.Errorf("%w: %d blocks in lists and %d loading, allocator has %d", ErrInvariant, members, loading,
			used)
	}
	return nil
}

func (p *Pool) validateBlock(id vm.BlockID, tag listTag) error {
	h := &p.heads[id]
	switch {
	case !p.alloc.IsAllocated(id):
		return fmt.Errorf("%w: block %d in list %s is not allocated", ErrInvariant, id, tag)
	case h.list != tag:
		return fmt.Errorf("%w: block %d in list %s is tagged %s", ErrInvariant, id, tag, h.list)
	case h.loading:
		return fmt.Errorf("%w: loading block %d is in list %s", ErrInvariant, id, tag)
	case tag == lockedList && h.pins == 0:
		return fmt.Errorf("%w: locked block %d has no pins", ErrInvariant, id)
	case tag != lockedList && h.pins != 0:
		return fmt.Errorf("%w: block %d in list %s has pins %x", ErrInvariant, id, tag, h.pins)
	case tag != freeList && p.index[h.block] != id:
		return fmt.Errorf("%w: block %d in list %s is not indexed", ErrInvariant, id, tag)
	}
	return nil
}

var _ blist.Nodes = heads(nil)
