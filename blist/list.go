// Package blist implements doubly linked lists of blocks whose links live in the blocks' own headers. A list keeps
// only its head and tail ids; header records are looked up by id through the Nodes interface, so membership costs no
// allocation.
package blist

import (
	"errors"
	"fmt"

	"dataserver/common"
	"dataserver/vm"
)

var ErrInvariant = errors.New("blist: invariant violation")

// Node holds the link fields embedded in a block header.
type Node struct {
	Prev vm.BlockID
	Next vm.BlockID
}

func (n *Node) linked() bool {
	return n.Prev != vm.NullBlock || n.Next != vm.NullBlock
}

// Nodes resolves a block id to the link fields of its header.
type Nodes interface {
	Node(id vm.BlockID) *Node
}

// List is an ordered set of blocks. A block must be a member of at most one list at a time. List is not safe for
// concurrent use.
type List struct {
	name  string
	nodes Nodes
	head  vm.BlockID
	tail  vm.BlockID
}

func New(name string, nodes Nodes) *List {
	return &List{name: name, nodes: nodes}
}

func (l *List) Name() string {
	return l.name
}

func (l *List) Head() vm.BlockID {
	return l.head
}

func (l *List) Tail() vm.BlockID {
	return l.tail
}

func (l *List) Empty() bool {
	return l.head == vm.NullBlock
}

// Len walks the list; it is meant for diagnostics only.
func (l *List) Len() int {
	n := 0
	for p := l.head; p != vm.NullBlock; p = l.nodes.Node(p).Next {
		n++
	}
	return n
}

// Contains walks the list; it is meant for diagnostics only.
func (l *List) Contains(id vm.BlockID) bool {
	for p := l.head; p != vm.NullBlock; p = l.nodes.Node(p).Next {
		if p == id {
			return true
		}
	}
	return false
}

func (l *List) checked() {
	if err := l.Validate(); err != nil {
		panic(err)
	}
}

// Insert pushes a block that is not linked anywhere to the head of the list.
func (l *List) Insert(id vm.BlockID) {
	item := l.nodes.Node(id)
	if common.Checked && (id == vm.NullBlock || item.linked() || l.Contains(id)) {
		panic(fmt.Sprintf("blist: %s: insert of linked block %d", l.name, id))
	}

	if l.head != vm.NullBlock {
		l.nodes.Node(l.head).Prev = id
		item.Next = l.head
	} else {
		l.tail = id
		item.Next = vm.NullBlock
	}
	item.Prev = vm.NullBlock
	l.head = id

	if common.Checked {
		l.checked()
	}
}

// PushTail appends a block that is not linked anywhere to the tail of the list.
func (l *List) PushTail(id vm.BlockID) {
	item := l.nodes.Node(id)
	if common.Checked && (id == vm.NullBlock || item.linked() || l.Contains(id)) {
		panic(fmt.Sprintf("blist: %s: push of linked block %d", l.name, id))
	}

	if l.tail != vm.NullBlock {
		l.nodes.Node(l.tail).Next = id
		item.Prev = l.tail
	} else {
		l.head = id
		item.Prev = vm.NullBlock
	}
	item.Next = vm.NullBlock
	l.tail = id

	if common.Checked {
		l.checked()
	}
}

// Promote moves a member to the head of the list. It returns false if the block already was the head.
func (l *List) Promote(id vm.BlockID) bool {
	if l.head == id {
		return false
	}
	l.unlink(id)
	l.Insert(id)
	return true
}

// Remove unlinks a member from wherever it is and clears its links.
func (l *List) Remove(id vm.BlockID) {
	if common.Checked && !l.Contains(id) {
		panic(fmt.Sprintf("blist: %s: remove of foreign block %d", l.name, id))
	}
	l.unlink(id)

	if common.Checked {
		l.checked()
	}
}

func (l *List) unlink(id vm.BlockID) {
	item := l.nodes.Node(id)
	if item.Prev != vm.NullBlock {
		l.nodes.Node(item.Prev).Next = item.Next
	} else {
		l.head = item.Next
	}
	if item.Next != vm.NullBlock {
		l.nodes.Node(item.Next).Prev = item.Prev
	} else {
		l.tail = item.Prev
	}
	item.Prev, item.Next = vm.NullBlock, vm.NullBlock
}

// PopTail removes and returns the tail, or the null id if the list is empty.
func (l *List) PopTail() vm.BlockID {
	id := l.tail
	if id != vm.NullBlock {
		l.Remove(id)
	}
	return id
}

// Truncate moves up to n blocks from the tail of l to the tail of dest, keeping their order, and returns the number
// of moved blocks.
func (l *List) Truncate(dest *List, n int) int {
	if dest == l {
		panic("blist: truncate into itself")
	}
	if n <= 0 || l.Empty() {
		return 0
	}

	count := 1
	first := l.tail
	last := l.tail
	node := l.nodes.Node(first)
	for count < n && node.Prev != vm.NullBlock {
		first = node.Prev
		node = l.nodes.Node(first)
		count++
	}

	// detach [first, last]
	if node.Prev != vm.NullBlock {
		l.tail = node.Prev
		l.nodes.Node(l.tail).Next = vm.NullBlock
	} else {
		l.head, l.tail = vm.NullBlock, vm.NullBlock
	}

	if dest.Empty() {
		node.Prev = vm.NullBlock
		dest.head = first
	} else {
		l.nodes.Node(dest.tail).Next = first
		node.Prev = dest.tail
	}
	dest.tail = last

	if common.Checked {
		l.checked()
		dest.checked()
	}
	return count
}

// Append splices other onto the tail of l and empties other.
func (l *List) Append(other *List) {
	if other == l {
		panic("blist: append to itself")
	}
	if other.Empty() {
		return
	}

	if l.Empty() {
		l.head, l.tail = other.head, other.tail
	} else {
		l.nodes.Node(l.tail).Next = other.head
		l.nodes.Node(other.head).Prev = l.tail
		l.tail = other.tail
	}
	other.head, other.tail = vm.NullBlock, vm.NullBlock

	if common.Checked {
		l.checked()
	}
}

// Replace puts block to in the position of member from. The header of to must not be linked; from leaves the list.
func (l *List) Replace(from, to vm.BlockID) {
	src, dst := l.nodes.Node(from), l.nodes.Node(to)
	dst.Prev, dst.Next = src.Prev, src.Next

	if src.Prev != vm.NullBlock {
		l.nodes.Node(src.Prev).Next = to
	} else {
		l.head = to
	}
	if src.Next != vm.NullBlock {
		l.nodes.Node(src.Next).Prev = to
	} else {
		l.tail = to
	}
	src.Prev, src.Next = vm.NullBlock, vm.NullBlock

	if common.Checked {
		l.checked()
	}
}

// ForEach visits blocks from head to tail until fn returns false. With allowRemoval the next link is read before fn
// runs, so fn may unlink the block it is given.
func (l *List) ForEach(fn func(id vm.BlockID) bool, allowRemoval bool) {
	p := l.head
	for p != vm.NullBlock {
		var next vm.BlockID
		if allowRemoval {
			next = l.nodes.Node(p).Next
		}
		if !fn(p) {
			return
		}
		if !allowRemoval {
			next = l.nodes.Node(p).Next
		}
		p = next
	}
}

// Validate walks the list and checks that it ends at tail without cycles and that every back link matches.
func (l *List) Validate() error {
	if (l.head == vm.NullBlock) != (l.tail == vm.NullBlock) {
		return fmt.Errorf("%w: %s: head %d, tail %d", ErrInvariant, l.name, l.head, l.tail)
	}

	seen := map[vm.BlockID]struct{}{}
	prev := vm.NullBlock
	for p := l.head; p != vm.NullBlock; p = l.nodes.Node(p).Next {
		if _, ok := seen[p]; ok {
			return fmt.Errorf("%w: %s: cycle at block %d", ErrInvariant, l.name, p)
		}
		seen[p] = struct{}{}
		if l.nodes.Node(p).Prev != prev {
			return fmt.Errorf("%w: %s: block %d has back link %d, want %d", ErrInvariant, l.name, p,
				l.nodes.Node(p).Prev, prev)
		}
		prev = p
	}
	if prev != l.tail {
		return fmt.Errorf("%w: %s: walk ends at %d, tail is %d", ErrInvariant, l.name, prev, l.tail)
	}
	return nil
}

// IDs returns the members from head to tail. It is meant for tests and diagnostics.
func (l *List) IDs() []vm.BlockID {
	ids := make([]vm.BlockID, 0)
	l.ForEach(func(id vm.BlockID) bool {
		ids = append(ids, id)
		return true
	}, false)
	return ids
}
