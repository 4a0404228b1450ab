package threadid

import (
	"fmt"
	"math/bits"
)

const (
	segmentWords = 8
	segmentBits  = segmentWords * 64
)

type segment struct {
	first int // index of the first bit covered by the segment
	words [segmentWords]uint64
	next  *segment
}

func (s *segment) empty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Bitmap is a sparse bitmap over a fixed range of indexes, kept as a sorted chain of fixed size segments. Segments are
// allocated the first time one of their bits is set, so a bitmap sized to a large file costs nothing until it is
// used.
type Bitmap struct {
	limit int
	head  *segment
}

// NewBitmap returns an empty bitmap for indexes in [0, limit).
func NewBitmap(limit int) *Bitmap {
	if limit < 0 {
		panic(fmt.Sprintf("threadid: negative bitmap limit %d", limit))
	}
	return &Bitmap{limit: limit}
}

// Limit returns the number of addressable bits.
func (b *Bitmap) Limit() int {
	return b.limit
}

func (b *Bitmap) check(i int) {
	if i < 0 || i >= b.limit {
		panic(fmt.Sprintf("threadid: bit %d out of range [0, %d)", i, b.limit))
	}
}

// find returns the segment covering bit i and its predecessor in the chain. seg is nil when no segment covers i, prev
// is then the segment after which one should be linked.
func (b *Bitmap) find(i int) (seg, prev *segment) {
	first := i - i%segmentBits
	for s := b.head; s != nil && s.first <= first; s = s.next {
		if s.first == first {
			return s, prev
		}
		prev = s
	}
	return nil, prev
}

func (b *Bitmap) Get(i int) bool {
	b.check(i)
	s, _ := b.find(i)
	if s == nil {
		return false
	}
	off := i - s.first
	return s.words[off/64]&(1<<(off%64)) != 0
}

// Set sets bit i and reports whether it was clear before.
func (b *Bitmap) Set(i int) bool {
	b.check(i)
	s, prev := b.find(i)
	if s == nil {
		s = &segment{first: i - i%segmentBits}
		if prev == nil {
			s.next = b.head
			b.head = s
		} else {
			s.next = prev.next
			prev.next = s
		}
	}

	off := i - s.first
	mask := uint64(1) << (off % 64)
	was := s.words[off/64]&mask != 0
	s.words[off/64] |= mask
	return !was
}

// Clear clears bit i and reports whether it was set. Segments are kept even when they become empty; see ShrinkToFit.
func (b *Bitmap) Clear(i int) bool {
	b.check(i)
	s, _ := b.find(i)
	if s == nil {
		return false
	}

	off := i - s.first
	mask := uint64(1) << (off % 64)
	was := s.words[off/64]&mask != 0
	s.words[off/64] &^= mask
	return was
}

// ForEach calls fn for every set bit in ascending order until fn returns false. fn may clear the bit it is given.
func (b *Bitmap) ForEach(fn func(i int) bool) {
	for s := b.head; s != nil; s = s.next {
		for w := range s.words {
			word := s.words[w]
			for word != 0 {
				bit := bits.TrailingZeros64(word)
				word &^= 1 << bit
				if !fn(s.first + w*64 + bit) {
					return
				}
			}
		}
	}
}

// Count returns the number of set bits.
func (b *Bitmap) Count() int {
	n := 0
	for s := b.head; s != nil; s = s.next {
		for _, w := range s.words {
			n += bits.OnesCount64(w)
		}
	}
	return n
}

// Reset clears every bit but keeps the segments allocated.
func (b *Bitmap) Reset() {
	for s := b.head; s != nil; s = s.next {
		s.words = [segmentWords]uint64{}
	}
}

// ShrinkToFit drops segments that have no bit set.
func (b *Bitmap) ShrinkToFit() {
	var prev *segment
	for s := b.head; s != nil; s = s.next {
		if !s.empty() {
			prev = s
			continue
		}
		if prev == nil {
			b.head = s.next
		} else {
			prev.next = s.next
		}
	}
}

// Segments returns the number of allocated segments.
func (b *Bitmap) Segments() int {
	n := 0
	for s := b.head; s != nil; s = s.next {
		n++
	}
	return n
}

// Size returns the memory held by the segments in bytes.
func (b *Bitmap) Size() int {
	return b.Segments() * segmentWords * 8
}
