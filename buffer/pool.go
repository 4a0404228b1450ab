package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dataserver/blist"
	"dataserver/common"
	"dataserver/pagefile"
	"dataserver/threadid"
	"dataserver/vm"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// PageIndex is the 0 based number of a page in the database file.
type PageIndex uint32

// Pin selects how LockPage holds a page.
type Pin int

const (
	// PinShared holds the page until the thread unlocks it.
	PinShared Pin = iota

	// PinFixed makes the page's block resident until the pool is closed. Fixed pages need no unlock.
	PinFixed
)

// blockSource tells where LockPage got the block it fills, so a failed read can give it back.
type blockSource int

const (
	fromFree blockSource = iota
	fromAllocator
	fromUnlocked
)

// Pool caches blocks of a read only database file in memory.
//
// Pages are read from the file a block at a time. Every block is in exactly one of four lists: locked blocks are held
// by at least one thread, unlocked blocks are resident but held by nobody, free blocks have memory but no content and
// fixed blocks stay resident until the pool is closed. Unlocked blocks are pushed to the head of their list, the tail
// is the next block to evict.
//
// All state is guarded by one mutex. Reads from the file run with the mutex released; a block being read is marked
// as loading and other threads asking for it wait on loaded.
type Pool struct {
	opts  Options
	file  pagefile.File
	alloc *vm.Allocator
	heads heads

	// index maps file blocks to pool blocks, vm.NullBlock when not resident.
	index []vm.BlockID

	// pending holds file blocks being read into a scratch buffer because no pool block was at hand.
	pending map[uint32]struct{}

	locked   *blist.List
	unlocked *blist.List
	free     *blist.List
	fixed    *blist.List

	threads      *threadid.Registry
	extentBlocks int // file blocks per extent bitmap bit

	pageCount int
	minBlocks int
	maxBlocks int // 0 for no limit
	clock     uint64
	loads     int

	mu     sync.Mutex
	loaded *sync.Cond
	closed bool

	stats *common.Stats
	log   *log.Entry

	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
}

// New creates a pool over f. Memory limits are clamped to the file size. If opts.MaintenancePeriod is not zero a
// background goroutine is started; Close stops it.
func New(f pagefile.File, opts Options) (*Pool, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if f.PageSize() != opts.Geometry.PageSize {
		return nil, fmt.Errorf("%w: file page size %d, pool page size %d", ErrBadOptions, f.PageSize(),
			opts.Geometry.PageSize)
	}
	if !pagefile.ValidSize(f.Size(), f.PageSize()) {
		return nil, fmt.Errorf("%w: %d bytes", pagefile.ErrBadFileSize, f.Size())
	}

	if opts.MinMemory > f.Size() {
		opts.MinMemory = f.Size()
	}
	if opts.MaxMemory > f.Size() {
		opts.MaxMemory = f.Size()
	}

	alloc, err := vm.Reserve(f.Size(), opts.Geometry)
	if err != nil {
		return nil, err
	}

	bs := int64(opts.Geometry.BlockSize())
	fileBlocks := int(common.RoundUpDiv(f.Size(), bs))
	extentBlocks := int(opts.ExtentSize / bs)
	if extentBlocks < 1 {
		extentBlocks = 1
	}

	id := uuid.New()
	p := &Pool{
		opts:         opts,
		file:         f,
		alloc:        alloc,
		heads:        make(heads, alloc.MaxBlockID()+1),
		index:        make([]vm.BlockID, fileBlocks),
		pending:      map[uint32]struct{}{},
		extentBlocks: extentBlocks,
		pageCount:    int(f.Size() / int64(f.PageSize())),
		minBlocks:    int(common.RoundUpDiv(opts.MinMemory, bs)),
		maxBlocks:    int(common.RoundUpDiv(opts.MaxMemory, bs)),
		stats:        common.NewStats(),
		log: log.WithFields(log.Fields{
			"pool": id.String(),
		}),
	}
	if opts.MaxMemory > 0 && p.maxBlocks < 2 {
		p.maxBlocks = 2
	}
	p.threads = threadid.NewRegistry(opts.MaxThreads, int(common.RoundUpDiv(int64(fileBlocks), int64(extentBlocks))))
	p.locked = blist.New("locked", p.heads)
	p.unlocked = blist.New("unlocked", p.heads)
	p.free = blist.New("free", p.heads)
	p.fixed = blist.New("fixed", p.heads)
	p.loaded = sync.NewCond(&p.mu)

	p.log.WithFields(log.Fields{
		"file_size":  f.Size(),
		"pages":      p.pageCount,
		"block_size": bs,
		"min_memory": opts.MinMemory,
		"max_memory": opts.MaxMemory,
	}).Info("buffer pool is created")

	if opts.MaintenancePeriod > 0 {
		p.startMaintenance()
	}
	return p, nil
}

// Close stops the maintenance goroutine, waits for reads in flight and releases all memory. Pages handed out by the
// pool must not be used after Close. The file is not closed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.loaded.Broadcast()
	p.mu.Unlock()

	p.stopMaintenance()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.loads > 0 {
		p.loaded.Wait()
	}

	p.threads.Clear()
	for i := range p.index {
		p.index[i] = vm.NullBlock
	}
	for _, l := range []*blist.List{p.locked, p.unlocked, p.free, p.fixed} {
		for !l.Empty() {
			p.heads[l.PopTail()].reset()
		}
	}

	err := p.alloc.Close()
	p.log.WithField("stats", p.stats.Snapshot()).Info("buffer pool is closed")
	return err
}

func (p *Pool) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed
}

func (p *Pool) PageCount() int {
	return p.pageCount
}

func (p *Pool) PageSize() int {
	return p.opts.Geometry.PageSize
}

func (p *Pool) UsedSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloc.UsedSize()
}

func (p *Pool) UnusedSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloc.UnusedSize()
}

func (p *Pool) CommittedSize() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.alloc.CommittedSize()
}

func (p *Pool) listOf(tag listTag) *blist.List {
	switch tag {
	case lockedList:
		return p.locked
	case unlockedList:
		return p.unlocked
	case freeList:
		return p.free
	case fixedList:
		return p.fixed
	default:
		return nil
	}
}

// link inserts a block that is in no list at the head of the list named by tag.
func (p *Pool) link(id vm.BlockID, tag listTag) {
	p.listOf(tag).Insert(id)
	p.heads[id].list = tag
}

func (p *Pool) unlink(id vm.BlockID) {
	h := &p.heads[id]
	if l := p.listOf(h.list); l != nil {
		l.Remove(id)
	}
	h.list = noList
}

func (p *Pool) fileBlock(page PageIndex) uint32 {
	return uint32(int(page) / p.opts.Geometry.BlockPages)
}

// isFixedBlock reports whether a file block is made fixed on first touch. The block holding page 0 carries the file
// header and is never evicted.
func (p *Pool) isFixedBlock(fb uint32) bool {
	return fb == 0
}

// thread returns the registry entry of tid, inserting it on first use. inserted is true when this call registered
// the thread.
func (p *Pool) thread(tid threadid.ID) (entry *threadid.Entry, inserted bool, err error) {
	pos, inserted, err := p.threads.Insert(tid)
	if err != nil {
		p.stats.Incr(statThreadLimit)
		return nil, false, err
	}
	if inserted {
		p.log.WithField("thread", tid).Debug("thread is registered")
	}
	return p.threads.At(pos), inserted, nil
}

// LockPage returns page pinned for thread tid. A block that is not resident is read from the file; concurrent calls
// for the same block read it once. A thread holds a block at most once, so one UnlockPage or UnlockThread releases
// every page the thread locked in that block.
func (p *Pool) LockPage(tid threadid.ID, page PageIndex, pin Pin) (*PageRef, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if int(page) >= p.pageCount {
		return nil, fmt.Errorf("%w: %d of %d", ErrPageOutOfRange, page, p.pageCount)
	}
	entry, inserted, err := p.thread(tid)
	if err != nil {
		return nil, err
	}

	id, err := p.resident(p.fileBlock(page))
	if err != nil {
		// a thread that never got a page does not keep a registry slot
		if inserted {
			p.threads.Erase(tid)
		}
		return nil, err
	}
	p.hold(id, entry, pin)
	return p.ref(tid, page, id), nil
}

// resident returns the pool block holding file block fb, reading it from the file if needed. It waits while another
// thread reads the same block.
func (p *Pool) resident(fb uint32) (vm.BlockID, error) {
	for {
		id := p.index[fb]
		_, pending := p.pending[fb]
		if id == vm.NullBlock && !pending {
			break
		}
		if pending || p.heads[id].loading {
			p.stats.Incr(statWaits)
			p.loaded.Wait()
			if p.closed {
				return vm.NullBlock, ErrClosed
			}
			continue
		}

		p.stats.Incr(statHits)
		return id, nil
	}

	p.stats.Incr(statMisses)
	return p.load(fb)
}

// hold records that entry holds resident block id and moves the block to the list it belongs to.
func (p *Pool) hold(id vm.BlockID, entry *threadid.Entry, pin Pin) {
	h := &p.heads[id]
	p.clock++
	h.access = p.clock
	h.freq++

	if h.list == fixedList {
		return
	}
	if pin == PinFixed || p.isFixedBlock(h.block) {
		p.unlink(id)
		h.pins = 0
		p.link(id, fixedList)
		return
	}

	h.pins |= 1 << entry.Slot
	entry.Extents.Set(int(h.block) / p.extentBlocks)
	switch h.list {
	case lockedList:
		p.locked.Promote(id)
	case unlockedList:
		p.unlink(id)
		p.link(id, lockedList)
	case noList:
		p.link(id, lockedList)
	default:
		panic(fmt.Sprintf("buffer: resident block %d is in list %s", id, h.list))
	}
}

func (p *Pool) ref(tid threadid.ID, page PageIndex, id vm.BlockID) *PageRef {
	ps := p.opts.Geometry.PageSize
	off := (int(page) % p.opts.Geometry.BlockPages) * ps
	return &PageRef{
		pool:  p,
		tid:   tid,
		page:  page,
		data:  p.alloc.Block(id)[off : off+ps : off+ps],
		fixed: p.heads[id].list == fixedList,
	}
}

// load reads file block fb into a pool block. It is called with the lock held and returns with it held, but releases
// it for the duration of the read.
func (p *Pool) load(fb uint32) (vm.BlockID, error) {
	id, src, err := p.acquire(false)
	if errors.Is(err, ErrNoPageAvailable) {
		return p.loadVictim(fb)
	}
	if err != nil {
		return vm.NullBlock, err
	}

	h := &p.heads[id]
	h.block = fb
	h.loading = true
	p.index[fb] = id

	n, err := p.readBlock(fb, p.alloc.Block(id))
	h.loading = false
	p.loaded.Broadcast()

	if err == nil && p.closed {
		err = ErrClosed
	}
	if err != nil {
		p.index[fb] = vm.NullBlock
		p.discard(id, src)
		return vm.NullBlock, err
	}

	p.stats.Incr(statReads)
	p.stats.Add(statReadBytes, uint64(n))
	return id, nil
}

// loadVictim reads file block fb when neither the free list nor the memory budget can provide a block. The block is
// read into a scratch buffer and the least recently unlocked block is evicted only after the read succeeded, so a
// failed read leaves every resident block in place.
func (p *Pool) loadVictim(fb uint32) (vm.BlockID, error) {
	if p.unlocked.Empty() {
		p.stats.Incr(statNoPage)
		return vm.NullBlock, ErrNoPageAvailable
	}

	buf := make([]byte, p.opts.Geometry.BlockSize())
	p.pending[fb] = struct{}{}
	n, err := p.readBlock(fb, buf)
	delete(p.pending, fb)
	p.loaded.Broadcast()

	if err == nil && p.closed {
		err = ErrClosed
	}
	if err != nil {
		return vm.NullBlock, err
	}

	// other threads ran while the lock was released
	id, _, err := p.acquire(true)
	if err != nil {
		p.stats.Incr(statNoPage)
		return vm.NullBlock, err
	}
	copy(p.alloc.Block(id), buf)
	p.heads[id].block = fb
	p.index[fb] = id

	p.stats.Incr(statReads)
	p.stats.Add(statReadBytes, uint64(n))
	return id, nil
}

// readBlock fills mem with file block fb. It is called with the lock held and releases it for the duration of the
// read. Bytes past the end of the file are zeroed.
func (p *Pool) readBlock(fb uint32, mem []byte) (int, error) {
	off := int64(fb) * int64(p.opts.Geometry.BlockSize())
	p.loads++

	p.mu.Unlock()
	n, err := pagefile.ReadRun(p.file, mem, off)
	if err == nil && n < len(mem) {
		clear(mem[n:])
	}
	p.mu.Lock()

	p.loads--
	if err != nil {
		p.stats.Incr(statReadErrors)
		p.log.WithFields(log.Fields{
			"block":  fb,
			"offset": off,
		}).WithError(err).Error("block read failed")
		return n, fmt.Errorf("%w: block %d: %w", ErrFileRead, fb, err)
	}
	return n, nil
}

// discard gives back a block taken by acquire whose read failed, leaving the resident set as it was before the call.
// A free block goes back to the tail it was taken from.
func (p *Pool) discard(id vm.BlockID, src blockSource) {
	p.heads[id].reset()
	if src == fromAllocator {
		if err := p.alloc.Release(id); err != nil {
			p.log.WithError(err).WithField("block_id", id).Error("block release failed")
		}
		return
	}
	p.free.PushTail(id)
	p.heads[id].list = freeList
}

// acquire returns a block that is in no list. Free blocks are used first, then new blocks while the memory budget
// allows. With harvest the least recently unlocked block is evicted as a last resort.
func (p *Pool) acquire(harvest bool) (vm.BlockID, blockSource, error) {
	if id := p.free.PopTail(); id != vm.NullBlock {
		p.heads[id].reset()
		return id, fromFree, nil
	}

	if p.maxBlocks == 0 || p.alloc.UsedBlocks() < p.maxBlocks {
		id, err := p.alloc.AllocBlock()
		if err == nil {
			return id, fromAllocator, nil
		}
		if !errors.Is(err, vm.ErrExhausted) {
			return vm.NullBlock, 0, err
		}
	}

	if harvest {
		if id := p.unlocked.PopTail(); id != vm.NullBlock {
			p.heads[id].list = noList
			p.evict(id)
			return id, fromUnlocked, nil
		}
	}
	return vm.NullBlock, 0, ErrNoPageAvailable
}

// evict forgets the content of a block. List links are kept so a block can be evicted while it sits in a
// temporary list.
func (p *Pool) evict(id vm.BlockID) {
	h := &p.heads[id]
	if h.pins != 0 || h.loading {
		panic(fmt.Sprintf("buffer: evicting block %d with pins %x, loading %v", id, h.pins, h.loading))
	}
	if p.index[h.block] == id {
		p.index[h.block] = vm.NullBlock
	}
	*h = blockHead{Node: h.Node}
	p.stats.Incr(statEvictions)
}

// UnlockPage releases the block of page held by thread tid. It returns false if the thread did not hold it.
func (p *Pool) UnlockPage(tid threadid.ID, page PageIndex) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || int(page) >= p.pageCount {
		return false
	}
	entry := p.threads.Get(tid)
	if entry == nil {
		return false
	}

	id := p.index[p.fileBlock(page)]
	if id == vm.NullBlock || p.heads[id].loading {
		return false
	}
	return p.release(id, entry)
}

// release clears the pin of entry on block id and unlocks the block when nobody holds it anymore.
func (p *Pool) release(id vm.BlockID, entry *threadid.Entry) bool {
	h := &p.heads[id]
	bit := uint64(1) << entry.Slot
	if h.pins&bit == 0 {
		return false
	}

	h.pins &^= bit
	if h.pins == 0 {
		p.unlink(id)
		p.link(id, unlockedList)
	}
	return true
}

// UnlockThread releases every block held by thread tid and returns the number of released blocks. With remove the
// thread is also dropped from the registry.
func (p *Pool) UnlockThread(tid threadid.ID, remove bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0
	}
	entry := p.threads.Get(tid)
	if entry == nil {
		return 0
	}

	count := 0
	entry.Extents.ForEach(func(ext int) bool {
		busy := false
		first := ext * p.extentBlocks
		last := first + p.extentBlocks
		if last > len(p.index) {
			last = len(p.index)
		}
		for fb := first; fb < last; fb++ {
			id := p.index[fb]
			if id == vm.NullBlock {
				continue
			}
			if p.heads[id].loading {
				busy = true
				continue
			}
			if p.release(id, entry) {
				count++
			}
		}
		if !busy {
			entry.Extents.Clear(ext)
		}
		return true
	})
	entry.Extents.ShrinkToFit()

	if remove {
		p.threads.Erase(tid)
		p.log.WithField("thread", tid).Debug("thread is removed")
	}
	if count > 0 {
		p.stats.Add(statUnlocked, uint64(count))
	}
	return count
}
