package engine

import "encoding/binary"

// A directory's entries live encoded in the first data page of the
// directory's own inode. The page layout is a serialization contract,
// not an aliasing trick:
//
//	offset 0:  occupancy bitmap, one uint64 little-endian word
//	offset 8:  64 entry records, 36 bytes each:
//	           32-byte zero-terminated name field, uint32 LE inode number
//
// A name shorter than 32 bytes is zero-padded; comparison stops at the
// first zero byte in either operand.
const (
	// DirEntryCap is the fixed number of entry slots per directory,
	// pinned by the one-word bitmap.
	DirEntryCap = 64

	// MaxNameLen is the longest entry name: the 32-byte field minus its
	// terminator.
	MaxNameLen = 31

	nameFieldLen = MaxNameLen + 1
	dirEntrySize = nameFieldLen + 4
	bitmapLen    = 8

	// dirTableLen is the encoded size of a full directory table; page
	// geometry must accommodate it.
	dirTableLen = bitmapLen + DirEntryCap*dirEntrySize
)

func decodeDirBitmap(page []byte) uint64 {
	return binary.LittleEndian.Uint64(page[:bitmapLen])
}

func encodeDirBitmap(page []byte, word uint64) {
	binary.LittleEndian.PutUint64(page[:bitmapLen], word)
}

func dirEntryOffset(slot int) int {
	return bitmapLen + slot*dirEntrySize
}

// encodeDirEntry writes (name, ino) into a slot's record. The name
// field is cleared first so a shorter name never inherits stale bytes.
func encodeDirEntry(page []byte, slot int, name string, ino uint32) {
	off := dirEntryOffset(slot)
	field := page[off : off+nameFieldLen]
	for i := range field {
		field[i] = 0
	}
	copy(field, name)
	binary.LittleEndian.PutUint32(page[off+nameFieldLen:off+dirEntrySize], ino)
}

// decodeDirEntry reads a slot's record. The returned name stops at the
// field's zero terminator.
func decodeDirEntry(page []byte, slot int) (string, uint32) {
	off := dirEntryOffset(slot)
	field := page[off : off+nameFieldLen]
	n := 0
	for n < len(field) && field[n] != 0 {
		n++
	}
	ino := binary.LittleEndian.Uint32(page[off+nameFieldLen : off+dirEntrySize])
	return string(field[:n]), ino
}

// namesEqual applies the truncated comparison rule: operands are
// compared byte-for-byte as if zero-padded to the 32-byte field width,
// stopping at the first zero byte in either. Two names differing only
// after a shared zero byte compare equal.
func namesEqual(stored []byte, probe string) bool {
	for i := 0; i < nameFieldLen; i++ {
		var s, p byte
		if i < len(stored) {
			s = stored[i]
		}
		if i < len(probe) {
			p = probe[i]
		}
		if s != p {
			return false
		}
		if s == 0 {
			return true
		}
	}
	return true
}

// storedNameField returns a slot's raw 32-byte name field for
// comparison without allocating.
func storedNameField(page []byte, slot int) []byte {
	off := dirEntryOffset(slot)
	return page[off : off+nameFieldLen]
}
