// Package workspace keeps one session Store per browser workspace.
package workspace

import (
	"errors"
	"time"

	"smartpdf-web/internal/flow"
	"smartpdf-web/internal/gateway"
	"smartpdf-web/internal/lifecycle"
	"smartpdf-web/internal/pkg/logger"
	"smartpdf-web/internal/session"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

var ErrNotFound = errors.New("workspace not found")

// Workspace bundles a Store with the controllers that drive it.
type Workspace struct {
	ID        string
	CreatedAt time.Time
	Store     *session.Store
	Upload    *flow.UploadController
	Chat      *flow.ChatController
}

// NotifierFactory builds the change observer for a new workspace.
type NotifierFactory func(workspaceID string) session.Notifier

type Options struct {
	IdleTTL         time.Duration
	CleanupInterval time.Duration
	SingleFile      bool

	UploadTimeout     time.Duration
	ChatTimeout       time.Duration
	EndSessionTimeout time.Duration

	Notifiers NotifierFactory
}

// Registry holds workspaces in a go-cache with sliding idle expiry. A
// workspace leaving the cache, by expiry or removal, is released through
// the guard so its backend session is not orphaned.
type Registry struct {
	cache  *cache.Cache
	gw     gateway.Gateway
	guard  *lifecycle.Guard
	logger logger.ILogger
	opts   Options
}

func NewRegistry(gw gateway.Gateway, guard *lifecycle.Guard, log logger.ILogger, opts Options) *Registry {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = time.Hour
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = 10 * time.Minute
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	r := &Registry{
		cache:  cache.New(opts.IdleTTL, opts.CleanupInterval),
		gw:     gw,
		guard:  guard,
		logger: log,
		opts:   opts,
	}
	r.cache.OnEvicted(r.onEvicted)
	return r
}

func (r *Registry) Create() *Workspace {
	id := uuid.NewString()

	var notifier session.Notifier
	if r.opts.Notifiers != nil {
		notifier = r.opts.Notifiers(id)
	}

	store := session.NewStore(r.gw, session.Options{
		UploadTimeout:     r.opts.UploadTimeout,
		ChatTimeout:       r.opts.ChatTimeout,
		EndSessionTimeout: r.opts.EndSessionTimeout,
		Notifier:          notifier,
		Logger:            r.logger,
	})

	ws := &Workspace{
		ID:        id,
		CreatedAt: time.Now(),
		Store:     store,
		Upload:    flow.NewUploadController(store, flow.UploadOptions{SingleFile: r.opts.SingleFile, Logger: r.logger}),
		Chat:      flow.NewChatController(store),
	}
	r.cache.Set(id, ws, cache.DefaultExpiration)

	r.logger.Info("WorkspaceRegistry", "Workspace created", map[string]interface{}{"workspace_id": id})
	return ws
}

// Get returns the workspace and slides its idle deadline forward.
func (r *Registry) Get(id string) (*Workspace, error) {
	x, found := r.cache.Get(id)
	if !found {
		return nil, ErrNotFound
	}
	ws := x.(*Workspace)
	// Replace refuses an item the janitor evicted since the Get.
	if err := r.cache.Replace(id, ws, cache.DefaultExpiration); err != nil {
		return nil, ErrNotFound
	}
	return ws, nil
}

// Remove releases the workspace's session for reason and drops it.
func (r *Registry) Remove(id string, reason lifecycle.Reason) {
	if x, found := r.cache.Get(id); found {
		r.guard.Release(reason, x.(*Workspace).Store)
	}
	r.cache.Delete(id)
}

func (r *Registry) Count() int {
	return r.cache.ItemCount()
}

// Range calls fn for every live workspace until fn returns false.
func (r *Registry) Range(fn func(ws *Workspace) bool) {
	for _, item := range r.cache.Items() {
		if !fn(item.Object.(*Workspace)) {
			return
		}
	}
}

// ReleaseAll releases every workspace's session for reason without
// removing the live workspaces. Used on process shutdown. Workspaces past
// their idle deadline are evicted first since Items skips them; their
// releases are counted too.
func (r *Registry) ReleaseAll(reason lifecycle.Reason) int {
	before := r.guard.Released()
	r.cache.DeleteExpired()
	released := int(r.guard.Released() - before)

	r.Range(func(ws *Workspace) bool {
		if _, ok := r.guard.Release(reason, ws.Store); ok {
			released++
		}
		return true
	})
	return released
}

// DeleteExpired evicts idle workspaces now instead of waiting for the janitor.
func (r *Registry) DeleteExpired() {
	r.cache.DeleteExpired()
}

func (r *Registry) onEvicted(id string, x interface{}) {
	ws, ok := x.(*Workspace)
	if !ok {
		return
	}
	r.logger.Info("WorkspaceRegistry", "Workspace evicted", map[string]interface{}{"workspace_id": id})
	r.guard.Release(lifecycle.ReasonIdleExpired, ws.Store)
}
