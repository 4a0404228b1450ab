package vm

import (
	"unsafe"

	"github.com/google/btree"
)

// arenaItem is an entry of the address index. Only committed arenas are indexed.
type arenaItem struct {
	base  uintptr
	arena int
}

func (ai arenaItem) Less(item btree.Item) bool {
	return ai.base < item.(arenaItem).base
}

// addrIndex maps a memory address back to the committed arena that contains it.
type addrIndex struct {
	tree *btree.BTree
}

func newAddrIndex() *addrIndex {
	return &addrIndex{tree: btree.New(16)}
}

func baseOf(mem []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(mem)))
}

func (x *addrIndex) insert(arena int, mem []byte) {
	x.tree.ReplaceOrInsert(arenaItem{base: baseOf(mem), arena: arena})
}

func (x *addrIndex) remove(mem []byte) {
	x.tree.Delete(arenaItem{base: baseOf(mem)})
}

// find returns the arena whose range starts at or below addr. The caller checks the upper bound.
func (x *addrIndex) find(addr uintptr) (arenaItem, bool) {
	var found arenaItem
	ok := false
	x.tree.DescendLessOrEqual(arenaItem{base: addr}, func(item btree.Item) bool {
		found, ok = item.(arenaItem), true
		return false
	})
	return found, ok
}

func (x *addrIndex) len() int {
	return x.tree.Len()
}
