package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPageStore_Boundary tests the fixed-extent contract: the last
// page is writable, one past it is rejected without mutation, and
// reading past the extent yields a zero page.
func TestPageStore_Boundary(t *testing.T) {
	t.Parallel()

	s := newPageStore(4, 8, 4096)
	payload := []byte("last page payload")

	require.NoError(t, s.writePage(1, 7, payload))

	err := s.writePage(1, 8, []byte("spill"))
	assert.ErrorIs(t, err, ErrOutOfRange)

	got := s.readPage(1, 7)
	assert.Equal(t, payload, got[:len(payload)], "rejected write must leave prior content intact")

	zero := s.readPage(1, 8)
	assert.Equal(t, make([]byte, 4096), zero, "read past the extent is an all-zero page")
}

// TestPageStore_BadInode tests that an inode number outside the table
// reads as zero and rejects writes.
func TestPageStore_BadInode(t *testing.T) {
	t.Parallel()

	s := newPageStore(4, 2, 4096)

	zero := s.readPage(9, 0)
	assert.True(t, bytes.Equal(zero, make([]byte, 4096)))

	err := s.writePage(9, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

// TestPageStore_FullPageOverwrite tests that a write is a whole-page
// overwrite: a short payload zeroes the remainder of the page.
func TestPageStore_FullPageOverwrite(t *testing.T) {
	t.Parallel()

	s := newPageStore(2, 2, 4096)
	require.NoError(t, s.writePage(0, 1, bytes.Repeat([]byte{0xAA}, 4096)))
	require.NoError(t, s.writePage(0, 1, []byte("short")))

	got := s.readPage(0, 1)
	assert.Equal(t, []byte("short"), got[:5])
	assert.Equal(t, make([]byte, 4096-5), got[5:], "tail must be zeroed, not stale")
}

// TestPageStore_ReadReturnsCopy tests that readPage hands back a copy,
// not a view of the backing array.
func TestPageStore_ReadReturnsCopy(t *testing.T) {
	t.Parallel()

	s := newPageStore(1, 1, 4096)
	require.NoError(t, s.writePage(0, 0, []byte("stable")))

	got := s.readPage(0, 0)
	got[0] = 'X'

	again := s.readPage(0, 0)
	assert.Equal(t, byte('s'), again[0])
}
