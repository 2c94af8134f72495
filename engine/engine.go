package engine

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arrayfs-dev/arrayfs/config"
	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// RootIno is the reserved inode number of the filesystem root. It is
// formatted once by Bootstrap and stays allocated for the lifetime of
// the store.
const RootIno uint32 = 0

// Engine is the storage engine aggregate: the inode table, the page
// array, the per-directory entry tables, and the mount session guard,
// owned by one object rather than ambient globals. Construct it once
// and share it; all methods are safe for concurrent use within the
// limits documented on each component.
//
// Contents survive Detach: the backing arrays belong to the engine, not
// to a mount session, so the store behaves like a medium that can be
// detached and reattached.
type Engine struct {
	cfg    *config.Config
	inodes *inodeTable
	pages  *pageStore
	dirs   *xsync.Map[uint32, *directory]
	guard  sessionGuard

	formatted atomic.Bool
}

// New constructs a detached, unformatted engine from validated
// geometry.
func New(cfg *config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine geometry: %w", err)
	}
	return &Engine{
		cfg:    cfg,
		inodes: newInodeTable(cfg.InodeCount),
		pages:  newPageStore(cfg.InodeCount, cfg.PagesPerFile, cfg.PageSize),
		dirs:   xsync.NewMap[uint32, *directory](),
	}, nil
}

// Bootstrap formats inode 0 as the root directory: pins its bit in the
// inode bitmap, writes its record, and clears its entry table. Must run
// before the first Attach; calling it again is a no-op.
func (e *Engine) Bootstrap() {
	logger := util.GetLogger("engine")
	if !e.formatted.CompareAndSwap(false, true) {
		logger.Warn().Msg("store already formatted")
		return
	}

	e.inodes.alloc.MarkAllocated(int(RootIno))
	e.inodes.mu.Lock()
	e.inodes.records[RootIno] = Record{Kind: KindDirectory, Mode: 0o755}
	e.inodes.mu.Unlock()
	encodeDirBitmap(e.pages.slice(RootIno, 0), 0)

	logger.Info().
		Int("inodes", e.cfg.InodeCount).
		Int("pages_per_file", e.cfg.PagesPerFile).
		Int("page_size", e.cfg.PageSize).
		Msg("store formatted, root at inode 0")
}

// Attach claims the single mount session. Fails with ErrAlreadyMounted
// while another session is active, and with a plain error if the store
// was never formatted.
func (e *Engine) Attach() (uuid.UUID, error) {
	if !e.formatted.Load() {
		return uuid.Nil, errors.New("store not formatted, call Bootstrap first")
	}
	return e.guard.attach()
}

// Detach releases the mount session. Idempotent; store contents are
// kept.
func (e *Engine) Detach() {
	e.guard.detach()
}

// Mounted reports whether a session is currently attached.
func (e *Engine) Mounted() bool {
	return e.guard.isMounted()
}

// dir resolves an inode number to its directory state and table page.
// The state object is created on first touch, rehydrating its slot
// allocator from the page's bitmap word.
func (e *Engine) dir(ino uint32) (*directory, []byte, error) {
	rec, err := e.inodes.read(ino)
	if err != nil {
		return nil, nil, err
	}
	if rec.Kind != KindDirectory {
		return nil, nil, fmt.Errorf("inode %d: %w", ino, ErrNotDirectory)
	}
	page := e.pages.slice(ino, 0)

	if d, ok := e.dirs.Load(ino); ok {
		return d, page, nil
	}
	fresh := newDirectory()
	fresh.rehydrate(page)
	d, _ := e.dirs.LoadOrStore(ino, fresh)
	return d, page, nil
}

// CreateEntry creates a file or directory named name under parent and
// returns its inode number. The duplicate-name check runs before any
// allocation; the directory slot is claimed before the inode number,
// and returned if the inode table is exhausted.
func (e *Engine) CreateEntry(parent uint32, name string, kind Kind, mode uint32) (uint32, error) {
	logger := util.GetLogger("engine.create")

	d, page, err := e.dir(parent)
	if err != nil {
		return 0, err
	}
	slot, err := d.reserve(page, name)
	if err != nil {
		logger.Debug().Err(err).Uint32("parent", parent).Str("name", name).Msg("reserve failed")
		return 0, err
	}
	ino, err := e.inodes.newInode(kind, mode)
	if err != nil {
		d.abort(page, slot)
		logger.Warn().Err(err).Uint32("parent", parent).Str("name", name).Msg("inode table exhausted")
		return 0, err
	}
	if kind == KindDirectory {
		// a fresh directory starts with an empty entry table
		encodeDirBitmap(e.pages.slice(ino, 0), 0)
	}
	d.commit(page, slot, name, ino)

	logger.Debug().
		Uint32("parent", parent).
		Str("name", name).
		Stringer("kind", kind).
		Uint32("ino", ino).
		Int("slot", slot).
		Msg("entry created")
	return ino, nil
}

// LookupEntry resolves name under parent to an inode number.
func (e *Engine) LookupEntry(parent uint32, name string) (uint32, error) {
	d, page, err := e.dir(parent)
	if err != nil {
		return 0, err
	}
	return d.lookup(page, name)
}

// ListEntries enumerates parent's entries in ascending slot order
// starting at cursor, with each entry's kind filled from the inode
// table. The returned cursor resumes the listing; per-entry Slot+1 can
// resume mid-batch.
func (e *Engine) ListEntries(parent uint32, cursor int) ([]DirEntry, int, error) {
	d, page, err := e.dir(parent)
	if err != nil {
		return nil, cursor, err
	}
	entries, next := d.enumerate(page, cursor)
	for i := range entries {
		rec, err := e.inodes.read(entries[i].Ino)
		if err != nil {
			// an occupied entry always points at an allocated inode;
			// surface the inconsistency instead of masking it
			return nil, cursor, fmt.Errorf("entry %q: %w", entries[i].Name, err)
		}
		entries[i].Kind = rec.Kind
	}
	return entries, next, nil
}

// StatInode returns the metadata record of an allocated inode.
func (e *Engine) StatInode(ino uint32) (Record, error) {
	return e.inodes.read(ino)
}

// SetSize updates a regular file's size, bounded by the fixed page
// extent. This is the inode-table write operation surfaced for the
// host, which owns size tracking across partial writes and truncation.
// Shrinking zeroes the dropped byte range, so growing the file again
// reads zeros there, never the pre-truncation bytes.
func (e *Engine) SetSize(ino uint32, size uint64) error {
	if size > e.cfg.MaxFileSize() {
		return fmt.Errorf("size %d exceeds extent %d: %w", size, e.cfg.MaxFileSize(), ErrOutOfRange)
	}
	rec, err := e.inodes.read(ino)
	if err != nil {
		return err
	}
	if size < rec.Size {
		if err := e.zeroRange(ino, size, rec.Size); err != nil {
			return err
		}
	}
	rec.Size = size
	return e.inodes.write(ino, rec)
}

// zeroRange clears the backing bytes in [from, to), page-granular:
// whole dropped pages are overwritten outright, a partially dropped
// page is read, its tail cleared, and written back.
func (e *Engine) zeroRange(ino uint32, from, to uint64) error {
	pageSize := uint64(e.cfg.PageSize)
	first := int(from / pageSize)
	last := int((to - 1) / pageSize)
	for p := first; p <= last; p++ {
		var data []byte
		if p == first && from%pageSize != 0 {
			data = e.pages.readPage(ino, p)
			for i := from % pageSize; i < pageSize; i++ {
				data[i] = 0
			}
		}
		if err := e.pages.writePage(ino, p, data); err != nil {
			return err
		}
	}
	return nil
}

// SetMode updates an inode's stored permission bits. Mode is stored,
// never enforced.
func (e *Engine) SetMode(ino uint32, mode uint32) error {
	rec, err := e.inodes.read(ino)
	if err != nil {
		return err
	}
	rec.Mode = mode
	return e.inodes.write(ino, rec)
}

// FreeInodes returns the number of unallocated inode slots.
func (e *Engine) FreeInodes() int {
	return e.inodes.alloc.Free()
}

// ReadPage returns a copy of one page. Out-of-range reads return a
// zero page, not an error: unwritten space in a bounded store reads as
// zero.
func (e *Engine) ReadPage(ino uint32, page int) []byte {
	return e.pages.readPage(ino, page)
}

// WritePage overwrites one full page. Out-of-range writes fail with
// ErrOutOfRange and mutate nothing.
func (e *Engine) WritePage(ino uint32, page int, data []byte) error {
	return e.pages.writePage(ino, page, data)
}

// Geometry accessors for the host adaptation layer.

func (e *Engine) InodeCount() int   { return e.cfg.InodeCount }
func (e *Engine) PagesPerFile() int { return e.cfg.PagesPerFile }
func (e *Engine) PageSize() int     { return e.cfg.PageSize }
func (e *Engine) MaxFileSize() uint64 {
	return e.cfg.MaxFileSize()
}
