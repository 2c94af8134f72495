package server

import (
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/arrayfs-dev/arrayfs/config"
	"github.com/arrayfs-dev/arrayfs/engine"
	"github.com/arrayfs-dev/arrayfs/internal/util"
	"github.com/arrayfs-dev/arrayfs/vfs"
)

// ArrayFs ties a formatted storage engine to the FUSE mount lifecycle:
// Serve attaches the single mount session and exposes the store at a
// mountpoint, Unmount tears the mount down and detaches. The engine
// keeps its contents across Unmount/Serve cycles.
type ArrayFs struct {
	*engine.Engine
	cfg    *config.Config
	server *fuse.Server
}

// New constructs and formats the backing store.
func New(cfg *config.Config) (*ArrayFs, error) {
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, err
	}
	eng.Bootstrap()
	return &ArrayFs{Engine: eng, cfg: cfg}, nil
}

// Serve mounts and serves the filesystem at the given mountPoint.
func (fs *ArrayFs) Serve(mountPoint string) error {
	session, err := fs.Attach()
	if err != nil {
		return err
	}
	logger := util.GetLogger("server")

	raw := vfs.NewRaw(fs.Engine, fs.cfg)
	opts := fs.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
	})
	if err != nil {
		fs.Detach()
		return err
	}
	fs.server = srv

	go srv.Serve()
	if err := srv.WaitMount(); err != nil {
		fs.Detach()
		return err
	}
	logger.Info().
		Str("mountpoint", mountPoint).
		Str("session", session.String()).
		Msg("store mounted")
	return nil
}

// Unmount cleanly unmounts the filesystem. The store detaches via the
// adapter's unmount hook; contents are kept.
func (fs *ArrayFs) Unmount() error {
	if fs.server == nil {
		return nil
	}
	return fs.server.Unmount()
}
