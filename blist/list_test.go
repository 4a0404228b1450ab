package blist

import (
	"math/rand"
	"testing"

	"dataserver/vm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type table []Node

func (t table) Node(id vm.BlockID) *Node {
	return &t[id]
}

func newTable(n int) table {
	return make(table, n+1)
}

func ids(xs ...int) []vm.BlockID {
	res := make([]vm.BlockID, 0, len(xs))
	for _, x := range xs {
		res = append(res, vm.BlockID(x))
	}
	return res
}

func TestList_Insert_Pushes_To_Head(t *testing.T) {
	l := New("test", newTable(4))
	for i := 1; i <= 4; i++ {
		l.Insert(vm.BlockID(i))
	}

	assert.Equal(t, ids(4, 3, 2, 1), l.IDs())
	assert.Equal(t, vm.BlockID(4), l.Head())
	assert.Equal(t, vm.BlockID(1), l.Tail())
	assert.Equal(t, 4, l.Len())
	require.NoError(t, l.Validate())
}

func TestList_PushTail_Appends(t *testing.T) {
	l := New("test", newTable(4))
	l.PushTail(1)
	assert.Equal(t, vm.BlockID(1), l.Head())
	assert.Equal(t, vm.BlockID(1), l.Tail())

	l.Insert(2)
	l.PushTail(3)
	assert.Equal(t, ids(2, 1, 3), l.IDs())
	assert.Equal(t, vm.BlockID(3), l.PopTail())
	require.NoError(t, l.Validate())
}

func TestList_Remove_Clears_Links(t *testing.T) {
	tbl := newTable(3)
	l := New("test", tbl)
	l.Insert(1)
	l.Insert(2)
	l.Insert(3)

	l.Remove(2)
	assert.Equal(t, ids(3, 1), l.IDs())
	assert.Equal(t, Node{}, tbl[2])

	l.Remove(3)
	l.Remove(1)
	assert.True(t, l.Empty())
	assert.Equal(t, vm.NullBlock, l.Tail())
	require.NoError(t, l.Validate())
}

func TestList_Promote(t *testing.T) {
	l := New("test", newTable(3))
	l.Insert(1)
	l.Insert(2)
	l.Insert(3)

	assert.True(t, l.Promote(1))
	assert.Equal(t, ids(1, 3, 2), l.IDs())
	assert.False(t, l.Promote(1))
	assert.Equal(t, vm.BlockID(2), l.Tail())
}

func TestList_Truncate_Moves_Tail_Keeping_Order(t *testing.T) {
	tbl := newTable(6)
	src := New("src", tbl)
	dst := New("dst", tbl)
	for i := 1; i <= 4; i++ {
		src.Insert(vm.BlockID(i))
	}
	dst.Insert(6)
	dst.Insert(5)

	moved := src.Truncate(dst, 3)

	assert.Equal(t, 3, moved)
	assert.Equal(t, ids(4), src.IDs())
	assert.Equal(t, ids(5, 6, 3, 2, 1), dst.IDs())
	require.NoError(t, src.Validate())
	require.NoError(t, dst.Validate())
}

func TestList_Truncate_More_Than_Len_Empties_Source(t *testing.T) {
	tbl := newTable(3)
	src := New("src", tbl)
	dst := New("dst", tbl)
	src.Insert(1)
	src.Insert(2)

	assert.Equal(t, 2, src.Truncate(dst, 10))
	assert.True(t, src.Empty())
	assert.Equal(t, ids(2, 1), dst.IDs())
	assert.Equal(t, 0, src.Truncate(dst, 1))
}

func TestList_Append(t *testing.T) {
	tbl := newTable(4)
	a := New("a", tbl)
	b := New("b", tbl)
	a.Insert(1)
	b.Insert(3)
	b.Insert(2)

	a.Append(b)
	assert.Equal(t, ids(1, 2, 3), a.IDs())
	assert.True(t, b.Empty())

	b.Insert(4)
	empty := New("a2", tbl)
	empty.Append(b)
	assert.Equal(t, ids(4), empty.IDs())
}

func TestList_Replace_Keeps_Position(t *testing.T) {
	tbl := newTable(5)
	l := New("test", tbl)
	l.Insert(1)
	l.Insert(2)
	l.Insert(3)

	l.Replace(2, 5)
	assert.Equal(t, ids(3, 5, 1), l.IDs())
	assert.Equal(t, Node{}, tbl[2])

	l.Replace(3, 2)
	l.Replace(1, 4)
	assert.Equal(t, ids(2, 5, 4), l.IDs())
	assert.Equal(t, vm.BlockID(2), l.Head())
	assert.Equal(t, vm.BlockID(4), l.Tail())
}

func TestList_ForEach_With_Removal(t *testing.T) {
	l := New("test", newTable(5))
	for i := 1; i <= 5; i++ {
		l.Insert(vm.BlockID(i))
	}

	l.ForEach(func(id vm.BlockID) bool {
		if id%2 == 1 {
			l.Remove(id)
		}
		return true
	}, true)
	assert.Equal(t, ids(4, 2), l.IDs())

	visited := 0
	l.ForEach(func(id vm.BlockID) bool {
		visited++
		return false
	}, false)
	assert.Equal(t, 1, visited)
}

func TestList_PopTail(t *testing.T) {
	l := New("test", newTable(2))
	l.Insert(1)
	l.Insert(2)

	assert.Equal(t, vm.BlockID(1), l.PopTail())
	assert.Equal(t, vm.BlockID(2), l.PopTail())
	assert.Equal(t, vm.NullBlock, l.PopTail())
}

func TestList_Validate_Detects_Broken_Links(t *testing.T) {
	tbl := newTable(3)
	l := New("test", tbl)
	l.Insert(1)
	l.Insert(2)

	tbl[1].Prev = 3
	assert.ErrorIs(t, l.Validate(), ErrInvariant)
}

func TestList_Random_Operations_Match_Model(t *testing.T) {
	const n = 64
	tbl := newTable(n)
	lists := []*List{New("a", tbl), New("b", tbl)}
	models := [][]vm.BlockID{nil, nil}
	where := make([]int, n+1)
	for i := range where {
		where[i] = -1
	}

	indexOf := func(xs []vm.BlockID, id vm.BlockID) int {
		for i, x := range xs {
			if x == id {
				return i
			}
		}
		return -1
	}

	r := rand.New(rand.NewSource(7))
	for step := 0; step < 5000; step++ {
		id := vm.BlockID(r.Intn(n) + 1)
		li := r.Intn(2)
		switch r.Intn(4) {
		case 0:
			if where[id] == -1 {
				lists[li].Insert(id)
				models[li] = append([]vm.BlockID{id}, models[li]...)
				where[id] = li
			}
		case 1:
			if w := where[id]; w != -1 {
				lists[w].Remove(id)
				i := indexOf(models[w], id)
				models[w] = append(models[w][:i], models[w][i+1:]...)
				where[id] = -1
			}
		case 2:
			if w := where[id]; w != -1 {
				lists[w].Promote(id)
				i := indexOf(models[w], id)
				models[w] = append(models[w][:i], models[w][i+1:]...)
				models[w] = append([]vm.BlockID{id}, models[w]...)
			}
		case 3:
			k := r.Intn(4)
			other := 1 - li
			moved := lists[li].Truncate(lists[other], k)
			cut := len(models[li]) - moved
			tail := append([]vm.BlockID{}, models[li][cut:]...)
			models[li] = models[li][:cut]
			models[other] = append(models[other], tail...)
			for _, x := range tail {
				where[x] = other
			}
		}

		for i := range lists {
			require.NoError(t, lists[i].Validate())
			if len(models[i]) == 0 {
				require.True(t, lists[i].Empty())
			} else {
				require.Equal(t, models[i], lists[i].IDs())
			}
		}
	}
}
