package threadid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBitmap_Allocates_Segments_Lazily(t *testing.T) {
	b := NewBitmap(100_000)
	assert.Equal(t, 0, b.Segments())
	assert.False(t, b.Get(70_000))

	assert.True(t, b.Set(70_000))
	assert.False(t, b.Set(70_000))
	assert.True(t, b.Set(3))
	assert.True(t, b.Set(segmentBits*3+1))

	assert.Equal(t, 3, b.Segments())
	assert.Equal(t, 3, b.Count())
	assert.True(t, b.Get(70_000))
	assert.False(t, b.Get(70_001))
}

func TestBitmap_ForEach_Visits_In_Order(t *testing.T) {
	b := NewBitmap(10_000)
	for _, i := range []int{9000, 1, 64, 513, 5} {
		b.Set(i)
	}

	got := make([]int, 0)
	b.ForEach(func(i int) bool {
		got = append(got, i)
		return true
	})
	assert.Equal(t, []int{1, 5, 64, 513, 9000}, got)

	got = got[:0]
	b.ForEach(func(i int) bool {
		got = append(got, i)
		return len(got) < 2
	})
	assert.Equal(t, []int{1, 5}, got)
}

func TestBitmap_Clear_And_Shrink(t *testing.T) {
	b := NewBitmap(10_000)
	b.Set(10)
	b.Set(2000)
	b.Set(9999)

	assert.True(t, b.Clear(2000))
	assert.False(t, b.Clear(2000))
	assert.False(t, b.Clear(5000))
	assert.Equal(t, 3, b.Segments())

	b.ShrinkToFit()
	assert.Equal(t, 2, b.Segments())
	assert.True(t, b.Get(10))
	assert.True(t, b.Get(9999))

	b.Reset()
	assert.Equal(t, 0, b.Count())
	assert.Equal(t, 2, b.Segments())
	b.ShrinkToFit()
	assert.Equal(t, 0, b.Segments())
	assert.Equal(t, 0, b.Size())
}

func TestBitmap_Should_Panic_Out_Of_Range(t *testing.T) {
	b := NewBitmap(10)
	assert.Panics(t, func() { b.Set(10) })
	assert.Panics(t, func() { b.Get(-1) })
}
