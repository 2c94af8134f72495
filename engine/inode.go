package engine

import (
	"fmt"
	"sync"

	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// Kind tags an inode as a regular file or a directory.
type Kind uint8

const (
	KindRegular Kind = iota
	KindDirectory
)

func (k Kind) String() string {
	switch k {
	case KindRegular:
		return "file"
	case KindDirectory:
		return "dir"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Record is the per-inode metadata stored in the dense inode table.
// Size is meaningful only for KindRegular and never exceeds
// pagesPerFile*pageSize. A Record is meaningful only while its inode
// number is marked allocated.
type Record struct {
	Kind Kind
	Mode uint32 // permission bits only; stored, never enforced
	Size uint64
}

// inodeTable is the fixed array of Records plus the global inode
// allocator. The RWMutex guards the record memory itself; callers
// writing the same inode concurrently are expected to serialize
// themselves, as a page cache would.
type inodeTable struct {
	mu      sync.RWMutex
	records []Record
	alloc   *SlotAllocator
}

func newInodeTable(capacity int) *inodeTable {
	return &inodeTable{
		records: make([]Record, capacity),
		alloc:   NewSlotAllocator(capacity),
	}
}

// newInode allocates the lowest free inode number and initializes its
// record with the given kind and mode at zero size. Returns ErrNoSpace
// with nothing allocated when the table is exhausted.
func (t *inodeTable) newInode(kind Kind, mode uint32) (uint32, error) {
	ino, err := t.alloc.Allocate()
	if err != nil {
		return 0, ErrNoSpace
	}
	t.mu.Lock()
	t.records[ino] = Record{Kind: kind, Mode: mode}
	t.mu.Unlock()

	logger := util.GetLogger("engine.inodes")
	logger.Debug().
		Uint32("ino", uint32(ino)).
		Stringer("kind", kind).
		Msg("allocated inode")
	return uint32(ino), nil
}

// read returns a copy of the record for an allocated inode number.
func (t *inodeTable) read(ino uint32) (Record, error) {
	if !t.alloc.IsAllocated(int(ino)) {
		return Record{}, fmt.Errorf("inode %d: %w", ino, ErrNotFound)
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.records[ino], nil
}

// write replaces the record of an allocated inode number.
func (t *inodeTable) write(ino uint32, rec Record) error {
	if !t.alloc.IsAllocated(int(ino)) {
		return fmt.Errorf("inode %d: %w", ino, ErrNotFound)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[ino] = rec
	return nil
}
