package nodelist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushBackPopFrontFIFO(t *testing.T) {
	l := New[int](4)
	require.True(t, l.IsEmpty())
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)
	require.Equal(t, 3, l.Len())

	v, ok := l.Front()
	require.True(t, ok)
	require.Equal(t, 1, v)

	got, ok := l.PopFront()
	require.True(t, ok)
	require.Equal(t, 1, got)
	got, ok = l.PopFront()
	require.True(t, ok)
	require.Equal(t, 2, got)
	got, ok = l.PopFront()
	require.True(t, ok)
	require.Equal(t, 3, got)

	require.True(t, l.IsEmpty())
	_, ok = l.PopFront()
	require.False(t, ok)
}

func TestSpansMultipleNodes(t *testing.T) {
	l := New[int](2)
	for i := 0; i < 10; i++ {
		l.PushBack(i)
	}
	require.Equal(t, 10, l.Len())
	for i := 0; i < 10; i++ {
		got, ok := l.PopFront()
		require.True(t, ok)
		require.Equal(t, i, got)
	}
	require.True(t, l.IsEmpty())
}

func TestEachWalksInOrderAndStopsEarly(t *testing.T) {
	l := New[int](2)
	for i := 0; i < 6; i++ {
		l.PushBack(i)
	}
	var seen []int
	l.Each(func(v int) bool {
		seen = append(seen, v)
		return v < 3
	})
	require.Equal(t, []int{0, 1, 2, 3}, seen)
}

func TestUpdateFront(t *testing.T) {
	l := New[int](4)
	l.PushBack(10)
	l.PushBack(20)
	require.True(t, l.UpdateFront(99))
	v, _ := l.Front()
	require.Equal(t, 99, v)

	empty := New[int](4)
	require.False(t, empty.UpdateFront(1))
}

func TestDropFront(t *testing.T) {
	l := New[int](2)
	for i := 0; i < 5; i++ {
		l.PushBack(i)
	}
	l.DropFront(3)
	require.Equal(t, 2, l.Len())
	v, _ := l.Front()
	require.Equal(t, 3, v)

	// dropping more than available is safe and just drains the list
	l.DropFront(10)
	require.True(t, l.IsEmpty())
}

func TestUpdateMatchMiddleOfList(t *testing.T) {
	l := New[int](2)
	for i := 0; i < 6; i++ {
		l.PushBack(i)
	}
	ok := l.UpdateMatch(func(v int) bool { return v == 3 }, 300)
	require.True(t, ok)

	var seen []int
	l.Each(func(v int) bool { seen = append(seen, v); return true })
	require.Equal(t, []int{0, 1, 2, 300, 4, 5}, seen)

	require.False(t, l.UpdateMatch(func(v int) bool { return v == 999 }, -1))
}

func TestRemoveMatchSplicesMiddleAndPreservesOrder(t *testing.T) {
	l := New[int](2)
	for i := 0; i < 6; i++ {
		l.PushBack(i)
	}
	got, ok := l.RemoveMatch(func(v int) bool { return v == 3 })
	require.True(t, ok)
	require.Equal(t, 3, got)
	require.Equal(t, 5, l.Len())

	var seen []int
	l.Each(func(v int) bool { seen = append(seen, v); return true })
	require.Equal(t, []int{0, 1, 2, 4, 5}, seen)

	_, ok = l.RemoveMatch(func(v int) bool { return v == 999 })
	require.False(t, ok)
}

func TestMinimumCapacityFloor(t *testing.T) {
	l := New[int](0)
	l.PushBack(1)
	l.PushBack(2)
	l.PushBack(3)
	require.Equal(t, 3, l.Len())
}
