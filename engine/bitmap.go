package engine

import (
	"math/bits"
	"sync"
)

const wordBits = 64

// SlotAllocator hands out slot indices from a fixed-capacity bit set,
// always choosing the lowest clear bit. The same abstraction backs the
// global inode pool and each directory's 64-entry pool; each instance
// carries its own lock, so allocations on different instances never
// contend.
type SlotAllocator struct {
	mu    sync.Mutex
	words []uint64
	cap   int
}

// NewSlotAllocator creates an allocator with the given fixed capacity.
func NewSlotAllocator(capacity int) *SlotAllocator {
	return &SlotAllocator{
		words: make([]uint64, (capacity+wordBits-1)/wordBits),
		cap:   capacity,
	}
}

// Cap returns the fixed capacity set at construction.
func (a *SlotAllocator) Cap() int {
	return a.cap
}

// Allocate marks the lowest clear bit allocated and returns its index.
// Returns ErrFull, with no mutation, when every slot is taken.
func (a *SlotAllocator) Allocate() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for w, word := range a.words {
		if word == ^uint64(0) {
			continue
		}
		bit := bits.TrailingZeros64(^word)
		slot := w*wordBits + bit
		if slot >= a.cap {
			break
		}
		a.words[w] |= 1 << bit
		return slot, nil
	}
	return 0, ErrFull
}

// Release clears a bit. Releasing an already-clear or out-of-range slot
// is a no-op.
func (a *SlotAllocator) Release(slot int) {
	if slot < 0 || slot >= a.cap {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.words[slot/wordBits] &^= 1 << (slot % wordBits)
}

// IsAllocated reports whether slot is currently marked allocated.
func (a *SlotAllocator) IsAllocated(slot int) bool {
	if slot < 0 || slot >= a.cap {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.words[slot/wordBits]&(1<<(slot%wordBits)) != 0
}

// MarkAllocated forces a bit set regardless of its prior state. Used by
// bootstrap to pin slot 0 and by the directory codec when rehydrating a
// bitmap word from its page.
func (a *SlotAllocator) MarkAllocated(slot int) {
	if slot < 0 || slot >= a.cap {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.words[slot/wordBits] |= 1 << (slot % wordBits)
}

// Free returns the number of clear slots.
func (a *SlotAllocator) Free() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	used := 0
	for _, w := range a.words {
		used += bits.OnesCount64(w)
	}
	return a.cap - used
}

// Snapshot returns the first bitmap word. Only meaningful for
// single-word allocators (capacity <= 64), which is what directories
// use; the word is what gets serialized into the directory page.
func (a *SlotAllocator) Snapshot() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.words[0]
}

// Restore overwrites the first bitmap word. Counterpart of Snapshot for
// decoding a directory page.
func (a *SlotAllocator) Restore(word uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.words[0] = word
}
