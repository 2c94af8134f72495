package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arrayfs-dev/arrayfs/config"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.NewDefaultConfig())
	require.NoError(t, err)
	e.Bootstrap()
	return e
}

// TestNew_RejectsBadGeometry tests that construction validates the
// configured geometry.
func TestNew_RejectsBadGeometry(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefaultConfig()
	cfg.PageSize = 512 // too small for a directory table
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = config.NewDefaultConfig()
	cfg.InodeCount = 0
	_, err = New(cfg)
	assert.Error(t, err)
}

// TestMountExclusivity tests the Detached -> Mounted -> Detached state
// machine: a second attach fails, detach is idempotent, and a fresh
// attach succeeds afterwards.
func TestMountExclusivity(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	first, err := e.Attach()
	require.NoError(t, err)
	assert.True(t, e.Mounted())

	_, err = e.Attach()
	assert.ErrorIs(t, err, ErrAlreadyMounted)
	assert.True(t, e.Mounted(), "failed attach must not tear down the active session")

	e.Detach()
	e.Detach() // idempotent
	assert.False(t, e.Mounted())

	second, err := e.Attach()
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each session gets its own id")
}

// TestAttach_RequiresBootstrap tests that an unformatted store refuses
// to mount.
func TestAttach_RequiresBootstrap(t *testing.T) {
	t.Parallel()

	e, err := New(config.NewDefaultConfig())
	require.NoError(t, err)

	_, err = e.Attach()
	assert.Error(t, err)

	e.Bootstrap()
	_, err = e.Attach()
	assert.NoError(t, err)
}

// TestBootstrap_Idempotent tests that a second Bootstrap call does not
// reformat a store that already has content.
func TestBootstrap_Idempotent(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ino, err := e.CreateEntry(RootIno, "keep", KindRegular, 0o644)
	require.NoError(t, err)

	e.Bootstrap()

	got, err := e.LookupEntry(RootIno, "keep")
	require.NoError(t, err)
	assert.Equal(t, ino, got)
}

// TestEndToEndScenario walks the full composed flow: bootstrap, attach,
// nested creation, page write, lookup, read-back, and listing.
func TestEndToEndScenario(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	_, err := e.Attach()
	require.NoError(t, err)

	docs, err := e.CreateEntry(RootIno, "docs", KindDirectory, 0o755)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), docs, "first allocation after root must be inode 1")

	file, err := e.CreateEntry(docs, "a.txt", KindRegular, 0o644)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), file)

	require.NoError(t, e.WritePage(file, 0, []byte("hello")))
	require.NoError(t, e.SetSize(file, 5))

	got, err := e.LookupEntry(docs, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, file, got)

	page := e.ReadPage(file, 0)
	require.Len(t, page, e.PageSize())
	assert.Equal(t, []byte("hello"), page[:5])

	entries, next, err := e.ListEntries(RootIno, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DirEntry{Slot: 0, Name: "docs", Ino: docs, Kind: KindDirectory}, entries[0])
	assert.Equal(t, DirEntryCap, next)

	rec, err := e.StatInode(file)
	require.NoError(t, err)
	assert.Equal(t, KindRegular, rec.Kind)
	assert.Equal(t, uint64(5), rec.Size)
}

// TestCreateEntry_Errors tests the failure taxonomy of the composed
// create operation.
func TestCreateEntry_Errors(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	_, err := e.CreateEntry(RootIno, "a", KindRegular, 0o644)
	require.NoError(t, err)
	_, err = e.CreateEntry(RootIno, "a", KindRegular, 0o644)
	assert.ErrorIs(t, err, ErrDuplicateName)

	_, err = e.CreateEntry(99, "b", KindRegular, 0o644)
	assert.ErrorIs(t, err, ErrNotFound)

	file, err := e.LookupEntry(RootIno, "a")
	require.NoError(t, err)
	_, err = e.CreateEntry(file, "c", KindRegular, 0o644)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

// TestCreateEntry_InodeExhaustion tests that running the inode table
// dry fails with ErrNoSpace and returns the reserved directory slot, so
// later creates (after space exists) see a consistent directory.
func TestCreateEntry_InodeExhaustion(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefaultConfig()
	cfg.InodeCount = 4 // root + 3
	e, err := New(cfg)
	require.NoError(t, err)
	e.Bootstrap()

	for i := 0; i < 3; i++ {
		_, err := e.CreateEntry(RootIno, fmt.Sprintf("f%d", i), KindRegular, 0o644)
		require.NoError(t, err)
	}

	_, err = e.CreateEntry(RootIno, "overflow", KindRegular, 0o644)
	assert.ErrorIs(t, err, ErrNoSpace)

	// the failed create must not leave a phantom entry behind
	entries, _, err := e.ListEntries(RootIno, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	_, err = e.LookupEntry(RootIno, "overflow")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestDetachKeepsData tests that unmounting clears only the session
// flag: contents survive a detach/attach cycle.
func TestDetachKeepsData(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	_, err := e.Attach()
	require.NoError(t, err)

	ino, err := e.CreateEntry(RootIno, "persist", KindRegular, 0o644)
	require.NoError(t, err)
	require.NoError(t, e.WritePage(ino, 0, []byte("still here")))

	e.Detach()
	_, err = e.Attach()
	require.NoError(t, err)

	got, err := e.LookupEntry(RootIno, "persist")
	require.NoError(t, err)
	assert.Equal(t, ino, got)
	assert.Equal(t, []byte("still here"), e.ReadPage(ino, 0)[:10])
}

// TestSetSize_Bounds tests that file size is capped at the fixed page
// extent.
func TestSetSize_Bounds(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	ino, err := e.CreateEntry(RootIno, "f", KindRegular, 0o644)
	require.NoError(t, err)

	require.NoError(t, e.SetSize(ino, e.MaxFileSize()))

	err = e.SetSize(ino, e.MaxFileSize()+1)
	assert.ErrorIs(t, err, ErrOutOfRange)

	err = e.SetSize(17, 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestListEntries_CursorResume tests stop-and-resume listing across
// calls, the host readdir pattern.
func TestListEntries_CursorResume(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		_, err := e.CreateEntry(RootIno, fmt.Sprintf("e%d", i), KindRegular, 0o644)
		require.NoError(t, err)
	}

	first, _, err := e.ListEntries(RootIno, 0)
	require.NoError(t, err)
	require.Len(t, first, 5)

	// consume two, resume one past the last consumed slot
	resume := first[1].Slot + 1
	rest, next, err := e.ListEntries(RootIno, resume)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	assert.Equal(t, first[2:], rest)
	assert.Equal(t, DirEntryCap, next)

	none, _, err := e.ListEntries(RootIno, next)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestConcurrentCreates tests that parallel creates in one directory
// produce unique inodes and names all resolve afterwards.
func TestConcurrentCreates(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t)

	const n = 16
	errs := make(chan error, n)
	inos := make(chan uint32, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			ino, err := e.CreateEntry(RootIno, fmt.Sprintf("c%02d", i), KindRegular, 0o644)
			errs <- err
			if err == nil {
				inos <- ino
			}
		}(i)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errs)
	}
	close(inos)

	seen := make(map[uint32]bool)
	for ino := range inos {
		assert.False(t, seen[ino], "inode %d handed out twice", ino)
		seen[ino] = true
	}

	for i := 0; i < n; i++ {
		_, err := e.LookupEntry(RootIno, fmt.Sprintf("c%02d", i))
		assert.NoError(t, err)
	}
}
