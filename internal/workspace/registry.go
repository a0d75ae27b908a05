package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/barledger/internal/identity"
	"github.com/odyssey-erp/barledger/internal/shared"
)

type slot struct {
	ws      *Workspace
	holders map[string]struct{}
}

// Registry owns the open workspaces, one per tenant. Every session that
// logs in or reaches a workspace becomes a holder of it; the workspace is
// torn down when its last holder logs out. Concurrent opens of the same
// tenant share a single load.
type Registry struct {
	deps  Deps
	group singleflight.Group

	mu   sync.Mutex
	open map[int64]*slot
}

// NewRegistry constructs a Registry.
func NewRegistry(deps Deps) *Registry {
	return &Registry{deps: deps.withDefaults(), open: make(map[int64]*slot)}
}

// Open joins the tenant workspace for a newly logged in session. Opening
// twice from the same session holds the workspace once.
func (r *Registry) Open(ctx context.Context, sessionID string, id identity.Identity) error {
	_, err := r.Join(ctx, sessionID, id.TenantID)
	return err
}

// Join returns the tenant workspace and records sessionID as a holder. An
// empty sessionID reads the workspace without holding it.
func (r *Registry) Join(ctx context.Context, sessionID string, tenantID int64) (*Workspace, error) {
	ws, err := r.Get(ctx, tenantID)
	if err != nil || sessionID == "" {
		return ws, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.open[tenantID]
	if !ok {
		// the last holder left between Get and here; keep the loaded state
		s = &slot{ws: ws, holders: make(map[string]struct{})}
		r.open[tenantID] = s
	}
	s.holders[sessionID] = struct{}{}
	return s.ws, nil
}

// Close releases one session's hold on the tenant workspace. A session that
// does not hold the workspace leaves it open.
func (r *Registry) Close(ctx context.Context, sessionID string, tenantID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.open[tenantID]
	if !ok {
		return
	}
	if _, held := s.holders[sessionID]; !held {
		r.deps.Logger.Debug("workspace release without hold", slog.Int64("tenant_id", tenantID))
		return
	}
	delete(s.holders, sessionID)
	if len(s.holders) == 0 {
		delete(r.open, tenantID)
		r.deps.Logger.Info("workspace closed", slog.Int64("tenant_id", tenantID))
	}
}

// Get returns the tenant workspace, loading it when no session holds it yet,
// for instance after a restart while sessions are still valid.
func (r *Registry) Get(ctx context.Context, tenantID int64) (*Workspace, error) {
	if tenantID == 0 {
		return nil, fmt.Errorf("%w: no tenant bound", shared.ErrUnauthenticated)
	}
	r.mu.Lock()
	if s, ok := r.open[tenantID]; ok {
		r.mu.Unlock()
		return s.ws, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(strconv.FormatInt(tenantID, 10), func() (any, error) {
		r.mu.Lock()
		if s, ok := r.open[tenantID]; ok {
			r.mu.Unlock()
			return s.ws, nil
		}
		r.mu.Unlock()
		ws, err := Open(ctx, r.deps, tenantID, r.deps.Clock())
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if s, ok := r.open[tenantID]; ok {
			return s.ws, nil
		}
		r.open[tenantID] = &slot{ws: ws, holders: make(map[string]struct{})}
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Workspace), nil
}

// Len returns the number of open workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.open)
}

var _ identity.Lifecycle = (*Registry)(nil)
