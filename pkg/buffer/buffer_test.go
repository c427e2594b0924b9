package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircularBasicOperations(t *testing.T) {
	buf := NewCircular[string](3)
	defer buf.Close()

	assert.Equal(t, 0, buf.Size())
	assert.Equal(t, 3, buf.Capacity())
	assert.True(t, buf.IsEmpty())
	assert.False(t, buf.IsFull())

	require.NoError(t, buf.Write("first"))
	require.NoError(t, buf.Write("second"))
	require.NoError(t, buf.Write("third"))
	assert.True(t, buf.IsFull())

	item, ok := buf.Peek()
	require.True(t, ok)
	assert.Equal(t, "first", item)
	assert.Equal(t, 3, buf.Size(), "peek must not consume")

	item, ok = buf.Read()
	require.True(t, ok)
	assert.Equal(t, "first", item)
	assert.Equal(t, 2, buf.Size())
}

func TestCircularDropOldest(t *testing.T) {
	buf := NewCircular[int](3, WithOverflowPolicy[int](DropOldest))
	defer buf.Close()

	for i := 1; i <= 5; i++ {
		require.NoError(t, buf.Write(i))
	}

	// Oldest two dropped; newest three remain in order.
	assert.Equal(t, 3, buf.Size())
	got := buf.ReadBatch(10)
	assert.Equal(t, []int{3, 4, 5}, got)

	stats := buf.Stats()
	assert.Equal(t, int64(2), stats.Drops())
	assert.Equal(t, int64(2), stats.Overflows())
}

func TestCircularDropNewest(t *testing.T) {
	buf := NewCircular[int](2, WithOverflowPolicy[int](DropNewest))
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	require.NoError(t, buf.Write(3)) // dropped

	got := buf.ReadBatch(10)
	assert.Equal(t, []int{1, 2}, got)
	assert.Equal(t, int64(1), buf.Stats().Drops())
}

func TestCircularDropCallback(t *testing.T) {
	var mu sync.Mutex
	var dropped []int

	buf := NewCircular[int](2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(item int) {
			mu.Lock()
			dropped = append(dropped, item)
			mu.Unlock()
		}),
	)
	defer buf.Close()

	for i := 1; i <= 4; i++ {
		require.NoError(t, buf.Write(i))
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, dropped)
}

func TestCircularDropCallbackMayReenterBuffer(t *testing.T) {
	var buf Buffer[int]
	var sizes []int

	buf = NewCircular[int](2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(int) {
			sizes = append(sizes, buf.Size())
		}),
	)
	defer buf.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 4; i++ {
			_ = buf.Write(i)
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drop callback deadlocked against the buffer lock")
	}
	assert.Equal(t, []int{2, 2}, sizes)
}

func TestCircularReadEmpty(t *testing.T) {
	buf := NewCircular[int](2)
	defer buf.Close()

	_, ok := buf.Read()
	assert.False(t, ok)
	assert.Nil(t, buf.ReadBatch(5))
}

func TestCircularClear(t *testing.T) {
	buf := NewCircular[int](4)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	buf.Clear()

	assert.True(t, buf.IsEmpty())
	_, ok := buf.Read()
	assert.False(t, ok)
}

func TestCircularWriteAfterClose(t *testing.T) {
	buf := NewCircular[int](2)
	require.NoError(t, buf.Close())
	assert.Error(t, buf.Write(1))
}

func TestCircularWrapAround(t *testing.T) {
	buf := NewCircular[int](3)
	defer buf.Close()

	// Interleave writes and reads to move head/tail past capacity.
	require.NoError(t, buf.Write(1))
	require.NoError(t, buf.Write(2))
	_, _ = buf.Read()
	require.NoError(t, buf.Write(3))
	require.NoError(t, buf.Write(4))
	_, _ = buf.Read()
	require.NoError(t, buf.Write(5))

	assert.Equal(t, []int{3, 4, 5}, buf.ReadBatch(10))
}

func TestCircularNeverExceedsCapacity(t *testing.T) {
	buf := NewCircular[int](10, WithOverflowPolicy[int](DropOldest))
	defer buf.Close()

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = buf.Write(base*100 + i)
			}
		}(g)
	}
	wg.Wait()

	assert.LessOrEqual(t, buf.Size(), 10)
	// DropOldest admits every write; drops are the displaced items.
	assert.Equal(t, int64(400), buf.Stats().Writes())
	assert.Equal(t, int64(390), buf.Stats().Drops())
}
