package vfs

import (
	"errors"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/arrayfs-dev/arrayfs/config"
	"github.com/arrayfs-dev/arrayfs/engine"
	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// Raw implements the low-level FUSE wire protocol over the storage
// engine. It serves as protocol adapter between the kernel VFS and the
// engine's operations; the engine's inode numbers map one-to-one onto
// FUSE node IDs, offset by one because node ID 0 is reserved on the
// wire (engine root 0 <-> fuse.FUSE_ROOT_ID).
type Raw struct {
	fuse.RawFileSystem
	eng    *engine.Engine
	cfg    *config.Config
	server *fuse.Server
	start  time.Time

	handles  *xsync.Map[uint64, uint32] // open file handles -> inode numbers
	lastFH   atomic.Uint64
	attrTTL  time.Duration
	entryTTL time.Duration
}

// NewRaw wraps an engine for serving through a fuse.Server.
func NewRaw(eng *engine.Engine, cfg *config.Config) *Raw {
	return &Raw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		eng:           eng,
		cfg:           cfg,
		start:         time.Now(),
		handles:       xsync.NewMap[uint64, uint32](),
		attrTTL:       time.Second,
		entryTTL:      time.Second,
	}
}

func (r *Raw) String() string {
	return "arrayfs"
}

func (r *Raw) Init(s *fuse.Server) {
	r.server = s
	logger := util.GetLogger("vfs.Init")
	logger.Debug().Msg("FUSE initialized")
}

func (r *Raw) OnUnmount() {
	r.eng.Detach()
	logger := util.GetLogger("vfs.OnUnmount")
	logger.Info().Msg("FUSE unmounted, store detached")
}

// nodeIno translates a FUSE node ID into an engine inode number.
func nodeIno(nodeID uint64) uint32 {
	if nodeID == fuse.FUSE_ROOT_ID {
		return engine.RootIno
	}
	return uint32(nodeID - 1)
}

func inoNode(ino uint32) uint64 {
	return uint64(ino) + 1
}

// errStatus translates the engine's error taxonomy into errno space.
func errStatus(err error) fuse.Status {
	switch {
	case err == nil:
		return fuse.OK
	case errors.Is(err, engine.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, engine.ErrDuplicateName):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, engine.ErrNoSpace), errors.Is(err, engine.ErrFull):
		return fuse.Status(syscall.ENOSPC)
	case errors.Is(err, engine.ErrNotDirectory):
		return fuse.ENOTDIR
	case errors.Is(err, engine.ErrNameTooLong):
		return fuse.Status(syscall.ENAMETOOLONG)
	case errors.Is(err, engine.ErrInvalidName):
		return fuse.EINVAL
	case errors.Is(err, engine.ErrOutOfRange):
		return fuse.Status(syscall.EFBIG)
	case errors.Is(err, engine.ErrAlreadyMounted):
		return fuse.EBUSY
	default:
		return fuse.EIO
	}
}

// fillAttr projects an engine record into FUSE attributes. The store
// keeps no timestamps; everything reports the adapter's start time.
func (r *Raw) fillAttr(ino uint32, rec engine.Record, out *fuse.Attr) {
	out.Ino = uint64(ino)
	out.Size = rec.Size
	out.Blksize = uint32(r.eng.PageSize())
	out.Blocks = (rec.Size + 511) / 512
	out.Nlink = 1
	switch rec.Kind {
	case engine.KindDirectory:
		out.Mode = uint32(syscall.S_IFDIR) | rec.Mode
	default:
		out.Mode = uint32(syscall.S_IFREG) | rec.Mode
	}
	ts := uint64(r.start.Unix())
	out.Atime = ts
	out.Mtime = ts
	out.Ctime = ts
}

func (r *Raw) fillEntry(ino uint32, rec engine.Record, out *fuse.EntryOut) {
	out.NodeId = inoNode(ino)
	r.fillAttr(ino, rec, &out.Attr)
	out.SetAttrTimeout(r.attrTTL)
	out.SetEntryTimeout(r.entryTTL)
}

func (r *Raw) Access(cancel <-chan struct{}, input *fuse.AccessIn) fuse.Status {
	// modes are stored, not enforced
	return fuse.OK
}

// Lookup resolves one name in a parent directory.
func (r *Raw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("vfs.Lookup")

	parent := nodeIno(header.NodeId)
	ino, err := r.eng.LookupEntry(parent, name)
	if err != nil {
		logger.Trace().Err(err).Uint32("parent", parent).Str("name", name).Msg("lookup miss")
		return errStatus(err)
	}
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		logger.Error().Err(err).Uint32("ino", ino).Msg("entry resolved to unreadable inode")
		return errStatus(err)
	}
	r.fillEntry(ino, rec, out)
	return fuse.OK
}

func (r *Raw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	ino := nodeIno(input.NodeId)
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	r.fillAttr(ino, rec, &out.Attr)
	out.SetTimeout(r.attrTTL)
	return fuse.OK
}

// SetAttr handles truncation and mode updates; everything else the
// store does not record and is acknowledged as-is.
func (r *Raw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	logger := util.GetLogger("vfs.SetAttr")

	ino := nodeIno(input.NodeId)
	if input.Valid&fuse.FATTR_SIZE != 0 {
		if err := r.eng.SetSize(ino, input.Size); err != nil {
			logger.Debug().Err(err).Uint32("ino", ino).Uint64("size", input.Size).Msg("truncate rejected")
			return errStatus(err)
		}
	}
	if input.Valid&fuse.FATTR_MODE != 0 {
		if err := r.eng.SetMode(ino, input.Mode&0o7777); err != nil {
			return errStatus(err)
		}
	}

	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	r.fillAttr(ino, rec, &out.Attr)
	out.SetTimeout(r.attrTTL)
	return fuse.OK
}

func (r *Raw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("vfs.Mkdir")

	parent := nodeIno(input.NodeId)
	ino, err := r.eng.CreateEntry(parent, name, engine.KindDirectory, input.Mode&0o7777)
	if err != nil {
		logger.Debug().Err(err).Uint32("parent", parent).Str("name", name).Msg("mkdir failed")
		return errStatus(err)
	}
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	r.fillEntry(ino, rec, out)
	return fuse.OK
}

func (r *Raw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	logger := util.GetLogger("vfs.Create")

	parent := nodeIno(input.NodeId)
	ino, err := r.eng.CreateEntry(parent, name, engine.KindRegular, input.Mode&0o7777)
	if err != nil {
		logger.Debug().Err(err).Uint32("parent", parent).Str("name", name).Msg("create failed")
		return errStatus(err)
	}
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	r.fillEntry(ino, rec, &out.EntryOut)
	out.Fh = r.openHandle(ino)
	return fuse.OK
}

func (r *Raw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ino := nodeIno(input.NodeId)
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	if rec.Kind != engine.KindRegular {
		return fuse.Status(syscall.EISDIR)
	}
	out.Fh = r.openHandle(ino)
	return fuse.OK
}

func (r *Raw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.handles.Delete(input.Fh)
}

func (r *Raw) openHandle(ino uint32) uint64 {
	fh := r.lastFH.Add(1)
	r.handles.Store(fh, ino)
	return fh
}

// fileHandle resolves an open file handle back to its inode number. A
// handle that was never issued, or already released, is EBADF.
func (r *Raw) fileHandle(fh uint64) (uint32, fuse.Status) {
	ino, ok := r.handles.Load(fh)
	if !ok {
		return 0, fuse.Status(syscall.EBADF)
	}
	return ino, fuse.OK
}

func (r *Raw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	ino, status := r.fileHandle(input.Fh)
	if status != fuse.OK {
		return nil, status
	}
	n, err := readSpan(r.eng, ino, int64(input.Offset), buf[:min(len(buf), int(input.Size))])
	if err != nil {
		return nil, errStatus(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *Raw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	logger := util.GetLogger("vfs.Write")

	ino, status := r.fileHandle(input.Fh)
	if status != fuse.OK {
		return 0, status
	}
	n, err := writeSpan(r.eng, ino, int64(input.Offset), data)
	if err != nil {
		logger.Debug().Err(err).
			Uint32("ino", ino).
			Uint64("offset", input.Offset).
			Int("len", len(data)).
			Msg("write rejected")
		return uint32(n), errStatus(err)
	}
	return uint32(n), fuse.OK
}

func (r *Raw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *Raw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	// all storage is memory; there is nothing to sync
	return fuse.OK
}

func (r *Raw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	ino := nodeIno(input.NodeId)
	rec, err := r.eng.StatInode(ino)
	if err != nil {
		return errStatus(err)
	}
	if rec.Kind != engine.KindDirectory {
		return fuse.ENOTDIR
	}
	return fuse.OK
}

func (r *Raw) ReleaseDir(input *fuse.ReleaseIn) {}

// ReadDir streams directory entries. The wire offset is the engine's
// slot cursor: entry offsets are slot+1, so the kernel resumes exactly
// one past the last slot it consumed, and entries created or seen
// earlier never repeat.
func (r *Raw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("vfs.ReadDir")

	ino := nodeIno(input.NodeId)
	entries, _, err := r.eng.ListEntries(ino, int(input.Offset))
	if err != nil {
		logger.Debug().Err(err).Uint32("ino", ino).Msg("readdir failed")
		return errStatus(err)
	}
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Kind == engine.KindDirectory {
			mode = uint32(syscall.S_IFDIR)
		}
		ok := out.AddDirEntry(fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.Ino),
			Mode: mode,
			Off:  uint64(e.Slot + 1),
		})
		if !ok {
			break // buffer full; kernel resumes at the last offset added
		}
	}
	return fuse.OK
}

// ReadDirPlus is ReadDir with ready-made lookup entries.
func (r *Raw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	ino := nodeIno(input.NodeId)
	entries, _, err := r.eng.ListEntries(ino, int(input.Offset))
	if err != nil {
		return errStatus(err)
	}
	for _, e := range entries {
		mode := uint32(syscall.S_IFREG)
		if e.Kind == engine.KindDirectory {
			mode = uint32(syscall.S_IFDIR)
		}
		entryOut := out.AddDirLookupEntry(fuse.DirEntry{
			Name: e.Name,
			Ino:  uint64(e.Ino),
			Mode: mode,
			Off:  uint64(e.Slot + 1),
		})
		if entryOut == nil {
			break
		}
		rec, err := r.eng.StatInode(e.Ino)
		if err != nil {
			return errStatus(err)
		}
		r.fillEntry(e.Ino, rec, entryOut)
	}
	return fuse.OK
}

func (r *Raw) StatFs(cancel <-chan struct{}, input *fuse.InHeader, out *fuse.StatfsOut) fuse.Status {
	pages := uint64(r.eng.InodeCount() * r.eng.PagesPerFile())
	out.Bsize = uint32(r.eng.PageSize())
	out.Blocks = pages
	out.Bfree = uint64(r.eng.FreeInodes() * r.eng.PagesPerFile())
	out.Bavail = out.Bfree
	out.Files = uint64(r.eng.InodeCount())
	out.Ffree = uint64(r.eng.FreeInodes())
	out.NameLen = engine.MaxNameLen
	return fuse.OK
}
