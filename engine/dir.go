package engine

import (
	"fmt"
	"sync"
)

// DirEntry is one occupied directory slot as seen by enumeration.
type DirEntry struct {
	Slot int
	Name string
	Ino  uint32
	Kind Kind
}

// directory is the in-memory side of one directory's entry table: a
// mutex serializing structural access to the table page and the
// directory's private slot allocator. The allocator word is the
// reserved set; the bitmap word encoded in the page is the committed
// set, the only one lookup and enumeration read. The two agree again
// whenever no insert is in flight, which is what rehydrate relies on.
//
// Locking is scoped per directory, so operations on two different
// directories never contend.
type directory struct {
	mu    sync.Mutex
	slots *SlotAllocator
}

func newDirectory() *directory {
	return &directory{slots: NewSlotAllocator(DirEntryCap)}
}

// rehydrate restores the allocator from a page's bitmap word. Called
// once when a directory state object is first attached to its page.
func (d *directory) rehydrate(page []byte) {
	d.slots.Restore(decodeDirBitmap(page))
}

// checkName enforces the entry-name contract shared by insert and
// lookup callers.
func checkName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%q: %w", name, ErrNameTooLong)
	}
	return nil
}

// findLocked scans the slots set in word, ascending, for a name match
// under the truncated comparison rule. Caller holds d.mu.
func (d *directory) findLocked(page []byte, name string, word uint64) (int, bool) {
	for slot := 0; slot < DirEntryCap; slot++ {
		if word&(1<<uint(slot)) == 0 {
			continue
		}
		if namesEqual(storedNameField(page, slot), name) {
			return slot, true
		}
	}
	return 0, false
}

// reserve checks for a duplicate name, then claims an entry slot and
// stamps the name into it. The duplicate check runs first so the
// duplicate path never leaks a slot, and it scans the reserved set so
// two in-flight inserts of the same name cannot both pass. A reserved
// slot stays invisible to lookup and enumerate until commit publishes
// it in the page's bitmap word.
func (d *directory) reserve(page []byte, name string) (int, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.findLocked(page, name, d.slots.Snapshot()); ok {
		return 0, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	slot, err := d.slots.Allocate()
	if err != nil {
		return 0, ErrNoSpace
	}
	encodeDirEntry(page, slot, name, 0)
	return slot, nil
}

// commit writes the target inode into a reserved slot and publishes it
// by setting its bit in the page's committed bitmap word.
func (d *directory) commit(page []byte, slot int, name string, ino uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	encodeDirEntry(page, slot, name, ino)
	encodeDirBitmap(page, decodeDirBitmap(page)|1<<uint(slot))
}

// abort returns a reserved slot unused. The committed word never
// contained it, so only the allocator and the stamped name need
// clearing.
func (d *directory) abort(page []byte, slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	encodeDirEntry(page, slot, "", 0)
	d.slots.Release(slot)
}

// insert is reserve+commit in one step, for callers that already hold
// the target inode number.
func (d *directory) insert(page []byte, name string, ino uint32) error {
	slot, err := d.reserve(page, name)
	if err != nil {
		return err
	}
	d.commit(page, slot, name, ino)
	return nil
}

// lookup resolves a name to its inode number, scanning committed slots
// in ascending order.
func (d *directory) lookup(page []byte, name string) (uint32, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	slot, ok := d.findLocked(page, name, decodeDirBitmap(page))
	if !ok {
		return 0, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	_, ino := decodeDirEntry(page, slot)
	return ino, nil
}

// enumerate collects committed entries in ascending slot order starting
// at start. The returned cursor is one past the last slot consumed, or
// DirEntryCap when the table is exhausted; re-calling with it resumes
// without loss or repetition as long as the directory is not mutated in
// between. Kind is left zero for the engine to fill in.
func (d *directory) enumerate(page []byte, start int) ([]DirEntry, int) {
	if start < 0 {
		start = 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []DirEntry
	word := decodeDirBitmap(page)
	for slot := start; slot < DirEntryCap; slot++ {
		if word&(1<<uint(slot)) == 0 {
			continue
		}
		name, ino := decodeDirEntry(page, slot)
		out = append(out, DirEntry{Slot: slot, Name: name, Ino: ino})
	}
	return out, DirEntryCap
}
