package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInodeTable_NewInode tests lowest-first numbering and exhaustion.
func TestInodeTable_NewInode(t *testing.T) {
	t.Parallel()

	tbl := newInodeTable(4)
	for want := uint32(0); want < 4; want++ {
		ino, err := tbl.newInode(KindRegular, 0o644)
		require.NoError(t, err)
		assert.Equal(t, want, ino)
	}

	_, err := tbl.newInode(KindRegular, 0o644)
	assert.ErrorIs(t, err, ErrNoSpace)
}

// TestInodeTable_ReadWrite tests record round trips and that
// unallocated or out-of-range numbers fail with ErrNotFound.
func TestInodeTable_ReadWrite(t *testing.T) {
	t.Parallel()

	tbl := newInodeTable(8)
	ino, err := tbl.newInode(KindDirectory, 0o755)
	require.NoError(t, err)

	rec, err := tbl.read(ino)
	require.NoError(t, err)
	assert.Equal(t, Record{Kind: KindDirectory, Mode: 0o755, Size: 0}, rec)

	rec.Size = 1024
	rec.Kind = KindRegular
	require.NoError(t, tbl.write(ino, rec))
	got, err := tbl.read(ino)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = tbl.read(3)
	assert.ErrorIs(t, err, ErrNotFound, "unallocated inode must not resolve")
	_, err = tbl.read(99)
	assert.ErrorIs(t, err, ErrNotFound)
	err = tbl.write(99, Record{})
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestKind_String exercises the tag labels used in logs.
func TestKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "file", KindRegular.String())
	assert.Equal(t, "dir", KindDirectory.String())
}
