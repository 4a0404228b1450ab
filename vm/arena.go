package vm

import "math/bits"

const nilArena = -1

type arenaState uint8

const (
	onNoList arenaState = iota
	onMixedList
	onFreeList
)

type arena struct {
	mem  []byte // nil when decommitted
	mask uint16 // occupancy, one bit per block
	full uint16 // mask of a full arena; the last arena of a reservation may hold fewer blocks
	prev int
	next int
	on   arenaState
}

func (ar *arena) isFull() bool {
	return ar.mask == ar.full
}

func (ar *arena) isEmpty() bool {
	return ar.mask == 0
}

func (ar *arena) count() int {
	return bits.OnesCount16(ar.mask)
}

// freeSlot returns the lowest free slot. The arena must not be full.
func (ar *arena) freeSlot() int {
	return bits.TrailingZeros16(^ar.mask & ar.full)
}

func (ar *arena) isSet(slot int) bool {
	return ar.mask&(1<<slot) != 0
}

// arenaList is a doubly linked list of arenas threaded through the arena table.
type arenaList struct {
	head  int
	count int
	state arenaState
}

func newArenaList(state arenaState) arenaList {
	return arenaList{head: nilArena, state: state}
}

func (l *arenaList) push(arenas []arena, i int) {
	ar := &arenas[i]
	if ar.on != onNoList {
		panic("vm: arena is already on a list")
	}
	ar.prev = nilArena
	ar.next = l.head
	if l.head != nilArena {
		arenas[l.head].prev = i
	}
	l.head = i
	ar.on = l.state
	l.count++
}

func (l *arenaList) remove(arenas []arena, i int) {
	ar := &arenas[i]
	if ar.on != l.state {
		panic("vm: arena is not on this list")
	}
	if ar.prev != nilArena {
		arenas[ar.prev].next = ar.next
	} else {
		l.head = ar.next
	}
	if ar.next != nilArena {
		arenas[ar.next].prev = ar.prev
	}
	ar.prev, ar.next = nilArena, nilArena
	ar.on = onNoList
	l.count--
}

func (l *arenaList) pop(arenas []arena) int {
	i := l.head
	if i != nilArena {
		l.remove(arenas, i)
	}
	return i
}

func (l *arenaList) forEach(arenas []arena, fn func(i int)) {
	for i := l.head; i != nilArena; i = arenas[i].next {
		fn(i)
	}
}
