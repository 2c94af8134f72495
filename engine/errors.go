package engine

import "errors"

// Every failure mode of the store is a defined value; the engine never
// panics on a boundary condition.
var (
	// ErrFull is returned by a SlotAllocator with no clear bit left.
	ErrFull = errors.New("allocator full")

	// ErrNoSpace is returned when a directory has no free entry slot or
	// the inode table is exhausted.
	ErrNoSpace = errors.New("no space left")

	// ErrNotFound is returned when a name or inode number does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when inserting a name that already
	// occupies a slot in the same directory.
	ErrDuplicateName = errors.New("name already exists")

	// ErrAlreadyMounted is returned by Attach while a session is active.
	ErrAlreadyMounted = errors.New("already mounted")

	// ErrOutOfRange rejects a page write past the fixed per-file extent
	// or to an inode number outside the table.
	ErrOutOfRange = errors.New("page out of range")

	// ErrNotDirectory is returned when a directory operation targets a
	// regular-file inode.
	ErrNotDirectory = errors.New("not a directory")

	// ErrNameTooLong rejects entry names longer than MaxNameLen bytes.
	ErrNameTooLong = errors.New("name too long")

	// ErrInvalidName rejects empty entry names, which would encode
	// indistinguishably from a vacant slot.
	ErrInvalidName = errors.New("invalid name")
)
