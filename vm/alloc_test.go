package vm

import (
	"errors"
	"math/rand"
	"testing"

	"dataserver/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 1 KiB blocks, 16 KiB arenas
var testGeo = Geometry{PageSize: 512, BlockPages: 2, ArenaBlocks: 16}

func newTestAllocator(t *testing.T, blocks int, opts ...Option) *Allocator {
	a, err := Reserve(int64(blocks*testGeo.BlockSize()), testGeo, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, a.Close())
	})
	return a
}

func TestAllocator_Should_Fail_When_Reservation_Is_Exhausted(t *testing.T) {
	a := newTestAllocator(t, 8)
	assert.Equal(t, 8, a.TotalBlocks())

	ids := make([]BlockID, 0, 8)
	for i := 0; i < 8; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)
		ids = append(ids, id)
	}

	_, err := a.AllocBlock()
	assert.ErrorIs(t, err, ErrExhausted)

	require.NoError(t, a.Release(ids[3]))
	id, err := a.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, ids[3], id)
	assert.Equal(t, 8, a.UsedBlocks())
	assert.Equal(t, 0, a.UnusedBlocks())
	assert.NoError(t, a.Validate())
}

func TestAllocator_Used_Plus_Unused_Is_Always_Total(t *testing.T) {
	a := newTestAllocator(t, 100)
	r := rand.New(rand.NewSource(42))

	allocated := make([]BlockID, 0)
	for i := 0; i < 2000; i++ {
		if len(allocated) == 0 || (r.Intn(3) > 0 && len(allocated) < a.TotalBlocks()) {
			id, err := a.AllocBlock()
			require.NoError(t, err)
			allocated = append(allocated, id)
		} else {
			idx := r.Intn(len(allocated))
			require.NoError(t, a.Release(allocated[idx]))
			allocated = append(allocated[:idx], allocated[idx+1:]...)
		}

		require.Equal(t, a.TotalBlocks(), a.UsedBlocks()+a.UnusedBlocks())
		require.Equal(t, len(allocated), a.UsedBlocks())
	}
	assert.NoError(t, a.Validate())
}

func TestAllocator_Block_Address_Round_Trip(t *testing.T) {
	a := newTestAllocator(t, 40)

	for i := 0; i < 40; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)

		b := a.Block(id)
		require.Len(t, b, testGeo.BlockSize())

		got, ok := a.BlockOf(b)
		require.True(t, ok)
		assert.Equal(t, id, got)
		assert.Same(t, &b[0], &a.Block(got)[0])
	}

	// an address inside a block is not a block address
	b := a.Block(testGeo.MakeID(0, 1))
	_, ok := a.BlockOf(b[1:])
	assert.False(t, ok)
}

func TestAllocator_Released_Arena_Is_Decommitted(t *testing.T) {
	a := newTestAllocator(t, 32)

	ids := make([]BlockID, 0)
	for i := 0; i < 16; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, int64(testGeo.ArenaSize()), a.CommittedSize())
	assert.Equal(t, 0, a.MixedArenas(), "full arena must not be on the mixed list")

	require.NoError(t, a.Release(ids[5]))
	assert.Equal(t, 1, a.MixedArenas(), "arena with one free block must be on the mixed list")

	addr := a.Block(ids[0])
	for _, id := range ids {
		if id != ids[5] {
			require.NoError(t, a.Release(id))
		}
	}
	assert.Equal(t, int64(0), a.CommittedSize())
	assert.Equal(t, 1, a.FreeArenas())
	assert.Equal(t, 0, a.MixedArenas())
	assert.Nil(t, a.Block(ids[0]))

	_, ok := a.BlockOf(addr)
	assert.False(t, ok)
	assert.NoError(t, a.Validate())
}

func TestAllocator_Should_Return_Zeroed_Blocks(t *testing.T) {
	a := newTestAllocator(t, 16)

	id1, err := a.AllocBlock()
	require.NoError(t, err)
	id2, err := a.AllocBlock()
	require.NoError(t, err)

	b := a.Block(id2)
	for i := range b {
		b[i] = 0xAB
	}

	require.NoError(t, a.Release(id2))
	id3, err := a.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, id2, id3)
	assert.Equal(t, make([]byte, testGeo.BlockSize()), a.Block(id3))
	assert.NotEqual(t, id1, id3)
}

func TestAllocator_Release_Of_Unallocated_Block(t *testing.T) {
	a := newTestAllocator(t, 16)
	_, err := a.AllocBlock()
	require.NoError(t, err)

	bad := testGeo.MakeID(0, 7)
	if common.Checked {
		assert.Panics(t, func() { _ = a.Release(bad) })
		return
	}
	assert.ErrorIs(t, a.Release(bad), ErrBadBlock)
	assert.ErrorIs(t, a.Release(NullBlock), ErrBadBlock)
}

func TestAllocator_Prefers_Mixed_Arena_Over_Fresh_One(t *testing.T) {
	a := newTestAllocator(t, 64)

	ids := make([]BlockID, 0)
	for i := 0; i < 20; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 2, a.ArenaBreak())

	// free a block in the first (full) arena; it becomes the head of the mixed list
	require.NoError(t, a.Release(ids[2]))
	id, err := a.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, ids[2], id)
	assert.Equal(t, 2, a.ArenaBreak())
}

func TestAllocator_Reuses_Free_Arena_Before_Moving_Break(t *testing.T) {
	a := newTestAllocator(t, 48)

	ids := make([]BlockID, 0)
	for i := 0; i < 32; i++ {
		id, err := a.AllocBlock()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	for _, id := range ids[:16] {
		require.NoError(t, a.Release(id))
	}
	assert.Equal(t, 1, a.FreeArenas())

	id, err := a.AllocBlock()
	require.NoError(t, err)
	assert.Equal(t, 0, testGeo.Arena(id))
	assert.Equal(t, 2, a.ArenaBreak())
	assert.Equal(t, 0, a.FreeArenas())
	assert.NoError(t, a.Validate())
}

func TestAllocator_With_Committed_Commits_Every_Arena(t *testing.T) {
	a := newTestAllocator(t, 40, WithCommitted())
	assert.Equal(t, 3, a.ArenaBreak())
	assert.Equal(t, 3, a.FreeArenas())
	assert.Equal(t, int64(3*testGeo.ArenaSize()), a.CommittedSize())

	id, err := a.AllocBlock()
	require.NoError(t, err)
	assert.NotNil(t, a.Block(id))
	assert.NoError(t, a.Validate())
}

func TestReserve_Should_Reject_Bad_Input(t *testing.T) {
	_, err := Reserve(0, testGeo)
	assert.ErrorIs(t, err, ErrReservationFailed)

	_, err = Reserve(1024, Geometry{PageSize: 1000, BlockPages: 1, ArenaBlocks: 1})
	assert.ErrorIs(t, err, ErrBadGeometry)

	_, err = Reserve(1024, Geometry{PageSize: 512, BlockPages: 2, ArenaBlocks: 17})
	assert.True(t, errors.Is(err, ErrBadGeometry))

	small := Geometry{PageSize: 512, BlockPages: 1, ArenaBlocks: 1}
	assert.ErrorIs(t, small.Validate(), ErrBadGeometry)
	_, err = Reserve(1024, small)
	assert.ErrorIs(t, err, ErrBadGeometry)
}

func TestBlockID_Encoding(t *testing.T) {
	g := DefaultGeometry()
	assert.Equal(t, 64*1024, g.BlockSize())
	assert.Equal(t, 1024*1024, g.ArenaSize())

	for arena := 0; arena < 5; arena++ {
		for slot := 0; slot < g.ArenaBlocks; slot++ {
			id := g.MakeID(arena, slot)
			assert.False(t, id.IsNull())
			assert.Equal(t, arena, g.Arena(id))
			assert.Equal(t, slot, g.Slot(id))
		}
	}
}
