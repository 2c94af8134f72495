package vfs

import (
	"github.com/arrayfs-dev/arrayfs/engine"
)

// The engine's page operations are whole-page only; byte-granular file
// IO is the host's job. readSpan and writeSpan are that host cache
// role: they read-modify-write at page granularity.

// readSpan copies file bytes [off, off+len(buf)) into buf, clamped to
// the file's current size. Returns the number of bytes produced.
func readSpan(e *engine.Engine, ino uint32, off int64, buf []byte) (int, error) {
	rec, err := e.StatInode(ino)
	if err != nil {
		return 0, err
	}
	if off < 0 || off >= int64(rec.Size) {
		return 0, nil
	}
	want := int64(len(buf))
	if remain := int64(rec.Size) - off; remain < want {
		want = remain
	}

	pageSize := int64(e.PageSize())
	n := int64(0)
	for n < want {
		page := int((off + n) / pageSize)
		inPage := (off + n) % pageSize
		chunk := pageSize - inPage
		if chunk > want-n {
			chunk = want - n
		}
		data := e.ReadPage(ino, page)
		copy(buf[n:n+chunk], data[inPage:inPage+chunk])
		n += chunk
	}
	return int(n), nil
}

// writeSpan stores buf at [off, off+len(buf)), extending the recorded
// file size when the span grows the file. Partially covered pages are
// read, patched, and written back whole. Spans past the fixed extent
// fail with ErrOutOfRange before any page is touched.
func writeSpan(e *engine.Engine, ino uint32, off int64, buf []byte) (int, error) {
	rec, err := e.StatInode(ino)
	if err != nil {
		return 0, err
	}
	end := off + int64(len(buf))
	if off < 0 || end > int64(e.MaxFileSize()) {
		return 0, engine.ErrOutOfRange
	}
	if len(buf) == 0 {
		return 0, nil
	}

	pageSize := int64(e.PageSize())
	n := int64(0)
	for n < int64(len(buf)) {
		page := int((off + n) / pageSize)
		inPage := (off + n) % pageSize
		chunk := pageSize - inPage
		if chunk > int64(len(buf))-n {
			chunk = int64(len(buf)) - n
		}

		var data []byte
		if inPage == 0 && chunk == pageSize {
			data = buf[n : n+chunk]
		} else {
			data = e.ReadPage(ino, page)
			copy(data[inPage:inPage+chunk], buf[n:n+chunk])
		}
		if err := e.WritePage(ino, page, data); err != nil {
			return int(n), err
		}
		n += chunk
	}

	if uint64(end) > rec.Size {
		if err := e.SetSize(ino, uint64(end)); err != nil {
			return int(n), err
		}
	}
	return int(n), nil
}
