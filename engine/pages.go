package engine

import (
	"fmt"

	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// pageStore is the backing medium: one flat byte array holding
// pagesPerFile fixed-size pages for every inode number. It is sized
// once at construction and never grows.
//
// Pages are not individually locked here; callers writing the same
// page concurrently may interleave at byte level, which is the
// documented contract of a cache-mediated store.
type pageStore struct {
	data         []byte
	inodeCount   int
	pagesPerFile int
	pageSize     int
}

func newPageStore(inodeCount, pagesPerFile, pageSize int) *pageStore {
	return &pageStore{
		data:         make([]byte, inodeCount*pagesPerFile*pageSize),
		inodeCount:   inodeCount,
		pagesPerFile: pagesPerFile,
		pageSize:     pageSize,
	}
}

func (s *pageStore) inRange(ino uint32, page int) bool {
	return int(ino) < s.inodeCount && page >= 0 && page < s.pagesPerFile
}

// slice returns the live page bytes. Callers outside the store must go
// through readPage/writePage; the directory layer uses slice directly
// because its page mutations happen under the directory lock.
func (s *pageStore) slice(ino uint32, page int) []byte {
	off := (int(ino)*s.pagesPerFile + page) * s.pageSize
	return s.data[off : off+s.pageSize]
}

// readPage copies a page into a fresh buffer. A read past the fixed
// extent, or of an inode number outside the table, is not an error: the
// store is bounded and unwritten space reads as zero.
func (s *pageStore) readPage(ino uint32, page int) []byte {
	buf := make([]byte, s.pageSize)
	if !s.inRange(ino, page) {
		logger := util.GetLogger("engine.pages")
		logger.Warn().
			Uint32("ino", ino).
			Int("page", page).
			Msg("read past fixed extent, returning zero page")
		return buf
	}
	copy(buf, s.slice(ino, page))
	return buf
}

// writePage overwrites a full page. Writes past the fixed extent are
// rejected with ErrOutOfRange and mutate nothing; there is no
// partial-page primitive at this layer, so data shorter than a page
// leaves the tail zeroed and data longer is truncated to the page.
func (s *pageStore) writePage(ino uint32, page int, data []byte) error {
	if !s.inRange(ino, page) {
		return fmt.Errorf("ino %d page %d: %w", ino, page, ErrOutOfRange)
	}
	dst := s.slice(ino, page)
	n := copy(dst, data)
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return nil
}
