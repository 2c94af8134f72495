package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/arrayfs-dev/arrayfs/internal/util"
)

// sessionGuard is the binary mount state machine: Detached -> Mounted
// -> Detached. The store itself is the single resource, so at most one
// logical mount may be active process-wide. Its lock is independent of
// the allocation locks; attach and detach never wait on file
// operations.
type sessionGuard struct {
	mu      sync.Mutex
	mounted bool
	session uuid.UUID
}

// attach claims the mount. A second attach while mounted fails with
// ErrAlreadyMounted and tears nothing down. The returned session ID
// exists for log correlation only.
func (g *sessionGuard) attach() (uuid.UUID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mounted {
		return uuid.Nil, ErrAlreadyMounted
	}
	g.mounted = true
	g.session = uuid.New()

	logger := util.GetLogger("engine.mount")
	logger.Info().
		Str("session", g.session.String()).
		Msg("store attached")
	return g.session, nil
}

// detach clears the mounted flag. Idempotent; the backing arrays are
// untouched, so the store behaves like a medium that can be detached
// and reattached with its contents intact.
func (g *sessionGuard) detach() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.mounted {
		logger := util.GetLogger("engine.mount")
		logger.Info().
			Str("session", g.session.String()).
			Msg("store detached")
	}
	g.mounted = false
	g.session = uuid.Nil
}

// isMounted reports the current state.
func (g *sessionGuard) isMounted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mounted
}
