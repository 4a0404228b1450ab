package vm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allocN(t *testing.T, a *Allocator, n int) []BlockID {
	ids := make([]BlockID, 0, n)
	for i := 0; i < n; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func TestDefragment_Should_Pack_Blocks_Into_One_Arena(t *testing.T) {
	a := newTestAllocator(t, 64)

	// two full arenas and a partially filled third one
	ids := allocN(t, a, 2*testGeo.ArenaBlocks+5)
	first, last := ids[0], ids[len(ids)-1]
	copy(a.Block(last), "last block")
	copy(a.Block(first), "first block")

	for _, id := range ids[1 : len(ids)-1] {
		require.NoError(t, a.Release(id))
	}
	require.Equal(t, 2, a.MixedArenas())
	require.Equal(t, 1, a.FreeArenas())

	moves := map[BlockID]BlockID{}
	moved, freed, err := a.Defragment(func(from, to BlockID) bool {
		moves[from] = to
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, 1, freed)

	require.Len(t, moves, 1)
	to, ok := moves[last]
	require.True(t, ok, "block of the higher arena should move")
	assert.Equal(t, testGeo.Arena(first), testGeo.Arena(to))
	assert.Equal(t, "last block", string(a.Block(to)[:10]))
	assert.Equal(t, "first block", string(a.Block(first)[:11]))

	assert.Equal(t, 2, a.ArenaUsage(0))
	assert.Equal(t, 1, a.MixedArenas())
	assert.Equal(t, 2, a.FreeArenas())
	assert.Equal(t, int64(testGeo.ArenaSize()), a.CommittedSize())
	assert.Equal(t, 2, a.UsedBlocks())
	assert.NoError(t, a.Validate())
}

func TestDefragment_Should_Not_Move_Refused_Blocks(t *testing.T) {
	a := newTestAllocator(t, 64)

	ids := allocN(t, a, 2*testGeo.ArenaBlocks)
	for i, id := range ids {
		if i != 0 && i != 1 && i != 20 {
			require.NoError(t, a.Release(id))
		}
	}

	pinned := ids[20]
	moved, freed, err := a.Defragment(func(from, to BlockID) bool {
		return from != pinned
	})
	require.NoError(t, err)
	assert.Equal(t, 0, moved)
	assert.Equal(t, 0, freed)
	assert.NotNil(t, a.Block(pinned))
	assert.Equal(t, 2, a.MixedArenas())
	assert.NoError(t, a.Validate())
}

func TestDefragment_Should_Stop_When_Target_Is_Full(t *testing.T) {
	a := newTestAllocator(t, 64)

	ids := allocN(t, a, 3*testGeo.ArenaBlocks)
	// arena 0 keeps 14 blocks, arena 1 keeps 4, arena 2 keeps 1
	keep := map[int]bool{}
	for i := 0; i < 14; i++ {
		keep[i] = true
	}
	for i := 16; i < 20; i++ {
		keep[i] = true
	}
	keep[40] = true
	for i, id := range ids {
		if !keep[i] {
			require.NoError(t, a.Release(id))
		}
	}

	moved, freed, err := a.Defragment(func(from, to BlockID) bool { return true })
	require.NoError(t, err)
	// arena 2 is emptied into arena 0, then arena 0 fills up with one block of arena 1
	assert.Equal(t, 2, moved)
	assert.Equal(t, 1, freed)
	assert.Equal(t, 19, a.UsedBlocks())
	assert.Equal(t, 16, a.ArenaUsage(0))
	assert.Equal(t, 3, a.ArenaUsage(1))
	assert.Equal(t, 1, a.MixedArenas())
	assert.NoError(t, a.Validate())
}

func TestDefragment_Without_Mixed_Arenas_Is_A_Noop(t *testing.T) {
	a := newTestAllocator(t, 32)
	allocN(t, a, 16)

	moved, freed, err := a.Defragment(func(from, to BlockID) bool {
		t.Fatal("nothing to move")
		return false
	})
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.Zero(t, freed)
}
