package buffer

import (
	"context"
	"time"

	"dataserver/blist"
	"dataserver/vm"
	log "github.com/sirupsen/logrus"
)

// freePoolBlock returns how many of current resident blocks may be freed without going below MinMemory.
func (p *Pool) freePoolBlock(current int) int {
	if current <= p.minBlocks {
		return 0
	}
	return current - p.minBlocks
}

// FreeUnlocked moves least recently unlocked blocks to the free list and returns their number. With decommit the
// blocks, and blocks already on the free list, are given back to the allocator instead so their memory returns to the
// OS. Resident memory never drops below MinMemory.
func (p *Pool) FreeUnlocked(decommit bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0
	}
	return p.freeUnlocked(decommit)
}

func (p *Pool) freeUnlocked(decommit bool) int {
	budget := p.freePoolBlock(p.alloc.UsedBlocks())
	freed := 0

	if decommit {
		for freed < budget && !p.free.Empty() {
			id := p.free.PopTail()
			p.heads[id].reset()
			p.releaseBlock(id)
			freed++
		}
	}
	if freed >= budget || p.unlocked.Empty() {
		p.countFreed(freed)
		return freed
	}

	harvest := blist.New("harvest", p.heads)
	p.unlocked.Truncate(harvest, budget-freed)
	harvest.ForEach(func(id vm.BlockID) bool {
		p.evict(id)
		if decommit {
			harvest.Remove(id)
			p.releaseBlock(id)
		} else {
			p.heads[id].list = freeList
		}
		freed++
		return true
	}, true)
	p.free.Append(harvest)

	p.countFreed(freed)
	return freed
}

func (p *Pool) releaseBlock(id vm.BlockID) {
	if err := p.alloc.Release(id); err != nil {
		p.log.WithError(err).WithField("block_id", id).Error("block release failed")
	}
}

func (p *Pool) countFreed(n int) {
	if n > 0 {
		p.stats.Add(statFreed, uint64(n))
	}
}

// Defragment packs resident blocks into as few arenas as possible so that emptied arenas return their memory to the
// OS. Blocks that are held by a thread, fixed or being read are never moved. It reports whether any block moved.
func (p *Pool) Defragment() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	return p.defragment()
}

func (p *Pool) defragment() bool {
	start := time.Now()
	moved, freed, err := p.alloc.Defragment(p.move)
	p.stats.Incr(statDefragRounds)

	entry := p.log.WithFields(log.Fields{
		"moved":    moved,
		"freed":    freed,
		"duration": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Error("defragmentation failed to decommit an arena")
	} else if moved > 0 {
		entry.Debug("defragmentation is done")
	}
	return moved > 0
}

// move is the relocation callback of the allocator's defragmentation. Only unlocked and free blocks can move since
// nobody can hold a reference into them.
func (p *Pool) move(from, to vm.BlockID) bool {
	h := &p.heads[from]
	if h.pins != 0 || h.loading {
		return false
	}

	var l *blist.List
	switch h.list {
	case unlockedList:
		l = p.unlocked
		p.index[h.block] = to
	case freeList:
		l = p.free
	default:
		return false
	}

	p.heads[to] = blockHead{
		block:  h.block,
		list:   h.list,
		access: h.access,
		freq:   h.freq,
	}
	l.Replace(from, to)
	h.reset()
	p.stats.Incr(statMoves)
	return true
}

// Notify wakes the maintenance goroutine. It never blocks.
func (p *Pool) Notify() {
	if p.wake == nil {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pool) startMaintenance() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.wake = make(chan struct{}, 1)
	p.done = make(chan struct{})

	go p.maintain(ctx)
}

// stopMaintenance cancels the maintenance goroutine and waits until it returns.
func (p *Pool) stopMaintenance() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Pool) maintain(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.opts.MaintenancePeriod)
	defer ticker.Stop()

	every := p.opts.defragEvery()
	round := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.wake:
		}

		round++
		p.maintenanceRound(every > 0 && round%every == 0)
	}
}

// maintenanceRound is skipped when the pool is busy; neither freeing nor defragmentation is needed for correctness.
func (p *Pool) maintenanceRound(defrag bool) {
	if !p.mu.TryLock() {
		p.stats.Incr(statSkippedRounds)
		return
	}
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.stats.Incr(statRounds)
	freed := p.freeUnlocked(true)
	if freed > 0 {
		p.log.WithFields(log.Fields{
			"freed":     freed,
			"used":      p.alloc.UsedSize(),
			"committed": p.alloc.CommittedSize(),
		}).Debug("unlocked blocks are freed")
	}
	if defrag {
		p.defragment()
	}
}
