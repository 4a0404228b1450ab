// Package threadid keeps track of the reader threads of a buffer pool.
//
// Go does not expose operating system thread ids, so a thread here is whatever owns an ID handed out by New: usually
// one goroutine, or a group of goroutines that release their pages together.
package threadid

import (
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"sync/atomic"
)

// ID identifies a reader thread. Zero is never handed out.
type ID uint64

var lastID atomic.Uint64

// New returns a process wide unique thread id.
func New() ID {
	return ID(lastID.Add(1))
}

var ErrTooManyThreads = errors.New("threadid: too many threads")

// MaxSlots is the largest registry capacity. Slots are bit indexes into uint64 masks.
const MaxSlots = 64

// Entry is the registry record of one thread.
type Entry struct {
	ID ID

	// Slot is a bit index that stays the same for the lifetime of the entry, unlike its position in the registry.
	Slot int

	// Extents has a bit set for every file extent the thread locked a page in.
	Extents *Bitmap
}

// Registry is a bounded set of thread entries sorted by id. It is not safe for concurrent use.
type Registry struct {
	entries []*Entry
	max     int
	slots   uint64 // bit i is set when slot i is taken
	extents int
}

// NewRegistry creates a registry for at most max threads. Every entry gets an extent bitmap with the given number
// of bits.
func NewRegistry(max, extents int) *Registry {
	if max <= 0 || max > MaxSlots {
		panic(fmt.Sprintf("threadid: registry capacity %d out of range [1, %d]", max, MaxSlots))
	}
	return &Registry{
		entries: make([]*Entry, 0, max),
		max:     max,
		extents: extents,
	}
}

// Find returns the position of id, or the position it would be inserted at.
func (r *Registry) Find(id ID) (int, bool) {
	pos := sort.Search(len(r.entries), func(i int) bool {
		return r.entries[i].ID >= id
	})
	return pos, pos < len(r.entries) && r.entries[pos].ID == id
}

// Insert adds id unless it is already there and returns its position. It fails with ErrTooManyThreads when the
// registry is full.
func (r *Registry) Insert(id ID) (int, bool, error) {
	pos, found := r.Find(id)
	if found {
		return pos, false, nil
	}
	if len(r.entries) >= r.max {
		return pos, false, fmt.Errorf("%w: limit is %d", ErrTooManyThreads, r.max)
	}

	slot := bits.TrailingZeros64(^r.slots)
	r.slots |= 1 << slot

	e := &Entry{ID: id, Slot: slot, Extents: NewBitmap(r.extents)}
	r.entries = append(r.entries, nil)
	copy(r.entries[pos+1:], r.entries[pos:])
	r.entries[pos] = e
	return pos, true, nil
}

// Erase removes id and reports whether it was present.
func (r *Registry) Erase(id ID) bool {
	pos, found := r.Find(id)
	if found {
		r.EraseAt(pos)
	}
	return found
}

func (r *Registry) EraseAt(pos int) {
	e := r.entries[pos]
	r.slots &^= 1 << e.Slot
	copy(r.entries[pos:], r.entries[pos+1:])
	r.entries[len(r.entries)-1] = nil
	r.entries = r.entries[:len(r.entries)-1]
}

func (r *Registry) At(pos int) *Entry {
	return r.entries[pos]
}

// Get returns the entry of id or nil.
func (r *Registry) Get(id ID) *Entry {
	if pos, ok := r.Find(id); ok {
		return r.entries[pos]
	}
	return nil
}

// BySlot returns the entry that owns slot, or nil.
func (r *Registry) BySlot(slot int) *Entry {
	if r.slots&(1<<slot) == 0 {
		return nil
	}
	for _, e := range r.entries {
		if e.Slot == slot {
			return e
		}
	}
	return nil
}

func (r *Registry) Len() int {
	return len(r.entries)
}

func (r *Registry) Cap() int {
	return r.max
}

// Clear removes every entry.
func (r *Registry) Clear() {
	for i := range r.entries {
		r.entries[i] = nil
	}
	r.entries = r.entries[:0]
	r.slots = 0
}
