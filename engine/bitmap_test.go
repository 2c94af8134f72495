package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSlotAllocator_Determinism tests that a fresh allocator hands out
// 0..C-1 in order and then fails with ErrFull.
func TestSlotAllocator_Determinism(t *testing.T) {
	t.Parallel()

	const capacity = 32
	a := NewSlotAllocator(capacity)

	for want := 0; want < capacity; want++ {
		got, err := a.Allocate()
		require.NoError(t, err)
		assert.Equal(t, want, got, "allocation must return the lowest clear bit")
	}

	_, err := a.Allocate()
	assert.ErrorIs(t, err, ErrFull)
}

// TestSlotAllocator_ReleaseReuse tests that releasing the lowest
// allocated index makes it the next one handed out.
func TestSlotAllocator_ReleaseReuse(t *testing.T) {
	t.Parallel()

	a := NewSlotAllocator(8)
	for i := 0; i < 8; i++ {
		_, err := a.Allocate()
		require.NoError(t, err)
	}

	a.Release(3)
	assert.False(t, a.IsAllocated(3))

	got, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 3, got)
	assert.True(t, a.IsAllocated(3))
}

// TestSlotAllocator_ReleaseIdempotent tests that releasing a clear or
// out-of-range slot does nothing.
func TestSlotAllocator_ReleaseIdempotent(t *testing.T) {
	t.Parallel()

	a := NewSlotAllocator(4)
	got, err := a.Allocate()
	require.NoError(t, err)
	require.Equal(t, 0, got)

	a.Release(1)
	a.Release(1)
	a.Release(-1)
	a.Release(99)

	got, err = a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 1, got, "double release must not disturb allocation order")
}

// TestSlotAllocator_MultiWord tests capacities spanning more than one
// bitmap word.
func TestSlotAllocator_MultiWord(t *testing.T) {
	t.Parallel()

	const capacity = 100
	a := NewSlotAllocator(capacity)

	for want := 0; want < capacity; want++ {
		got, err := a.Allocate()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := a.Allocate()
	assert.ErrorIs(t, err, ErrFull)

	a.Release(70)
	got, err := a.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 70, got)
}

// TestSlotAllocator_NoDoubleAllocation tests that concurrent Allocate
// calls never hand out the same slot twice.
func TestSlotAllocator_NoDoubleAllocation(t *testing.T) {
	t.Parallel()

	const capacity = 64
	a := NewSlotAllocator(capacity)

	results := make(chan int, capacity)
	var wg sync.WaitGroup
	for i := 0; i < capacity; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			slot, err := a.Allocate()
			if err == nil {
				results <- slot
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := make(map[int]bool)
	for slot := range results {
		assert.False(t, seen[slot], "slot %d allocated twice", slot)
		seen[slot] = true
	}
	assert.Len(t, seen, capacity)
}

// TestSlotAllocator_SnapshotRestore tests the single-word round trip
// used by the directory page codec.
func TestSlotAllocator_SnapshotRestore(t *testing.T) {
	t.Parallel()

	a := NewSlotAllocator(64)
	_, err := a.Allocate()
	require.NoError(t, err)
	_, err = a.Allocate()
	require.NoError(t, err)
	a.MarkAllocated(63)

	word := a.Snapshot()
	assert.Equal(t, uint64(1<<0|1<<1|1<<63), word)

	b := NewSlotAllocator(64)
	b.Restore(word)
	assert.True(t, b.IsAllocated(0))
	assert.True(t, b.IsAllocated(63))
	assert.False(t, b.IsAllocated(2))

	got, err := b.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}
