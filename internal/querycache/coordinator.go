// Package querycache decides, for every history query against a workspace,
// whether a cached or in-flight result can be reused or a new fetch must be
// issued to the history source.
//
// Each workspace has one cache entry (see internal/state). Deciding and
// installing a new fetch happen in one critical section per workspace, so
// identical concurrent requests share a single in-flight future instead of
// fetching twice. Workspaces never wait on each other.
package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sergeknystautas/githistory/internal/future"
	"github.com/sergeknystautas/githistory/internal/history"
	"github.com/sergeknystautas/githistory/internal/logging"
	"github.com/sergeknystautas/githistory/internal/state"
)

// Coordinator is the query cache in front of a HistorySource.
type Coordinator struct {
	source   HistorySource
	store    state.StateStore
	registry *registry
	logger   *log.Logger
	notify   func(Event)

	fetchTimeout time.Duration

	// ctx is the parent of every fetch. Fetches are shared between callers,
	// so no single caller's context may cancel one.
	ctx       context.Context
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New creates a Coordinator. store may be nil, in which case a fresh
// in-memory store is used.
func New(source HistorySource, store state.StateStore, opts ...Option) *Coordinator {
	if store == nil {
		store = state.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		source:   source,
		store:    store,
		registry: newRegistry(),
		logger:   logging.Discard(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RegisterWorkspace returns the short id for a workspace path. The same
// path always yields the same id.
func (c *Coordinator) RegisterWorkspace(path string) (string, error) {
	if c.closed.Load() {
		return "", history.InvalidStatef("query cache is closed")
	}
	ws, err := c.registry.register(path)
	if err != nil {
		return "", err
	}
	c.logger.Debug("registered workspace", "id", ws.ID, "path", ws.Path)
	return ws.ID, nil
}

// Workspace resolves a registered id.
func (c *Coordinator) Workspace(id string) (Workspace, error) {
	if c.closed.Load() {
		return Workspace{}, history.InvalidStatef("query cache is closed")
	}
	return c.registry.lookup(id)
}

// Workspaces returns every registered workspace, sorted by path.
func (c *Coordinator) Workspaces() []Workspace {
	return c.registry.list()
}

// GetLogEntries returns the log page for params, reusing cached or
// in-flight results where possible:
//
//  1. No page, size, search or file override, a cached listing exists, and
//     the branch is absent or equal to the cached branch: the cached page is
//     served with the memoized selected commit folded in.
//  2. params equal the cached params: the cached future is returned.
//  3. Otherwise a new fetch is installed and returned.
//
// Rule 1 takes priority over rule 2. Upstream failures surface from the
// returned future; failed futures stay cached until RefreshLogEntries.
func (c *Coordinator) GetLogEntries(id string, params history.QueryParams) (*future.Future[*history.LogPage], error) {
	return c.logEntries(id, params, false)
}

// RefreshLogEntries always issues a new fetch for params and installs it,
// replacing whatever was cached.
func (c *Coordinator) RefreshLogEntries(id string, params history.QueryParams) (*future.Future[*history.LogPage], error) {
	return c.logEntries(id, params, true)
}

type reuse int

const (
	reuseNone reuse = iota
	reuseCurrent
	reuseExact
)

func (c *Coordinator) logEntries(id string, params history.QueryParams, refresh bool) (*future.Future[*history.LogPage], error) {
	ws, err := c.Workspace(id)
	if err != nil {
		return nil, err
	}

	var (
		result   *future.Future[*history.LogPage]
		selected *future.Future[*history.Commit]
		how      reuse
	)
	err = c.store.Update(ws.Path, func(entry *state.CacheEntry) {
		switch {
		case !refresh && servesCurrent(*entry, params):
			result, selected, how = entry.Result, entry.LastFetchedCommit, reuseCurrent
		case !refresh && entry.HasResult() && entry.Params == params:
			result, how = entry.Result, reuseExact
		default:
			result = c.fetchLogPage(ws, params)
			entry.Params = params
			entry.Result = result
			how = reuseNone
		}
	})
	if err != nil {
		return nil, err
	}

	switch how {
	case reuseCurrent:
		c.logger.Debug("serving current listing", "workspace", ws.ID, "selected", selected != nil)
		return c.withSelection(ws, result, selected), nil
	case reuseExact:
		c.logger.Debug("reusing listing", "workspace", ws.ID, "params", params)
		return result, nil
	default:
		c.emit(Event{Type: EventEntriesUpdated, WorkspaceID: ws.ID, Params: params})
		return result, nil
	}
}

// servesCurrent reports whether params ask for "whatever was last shown".
func servesCurrent(entry state.CacheEntry, params history.QueryParams) bool {
	if params.HasViewOverride() || !entry.HasResult() {
		return false
	}
	return !params.Branch.IsSet() || params.Branch == entry.Params.Branch
}

// withSelection derives a copy of the cached page carrying the selected
// commit. The cached page itself is never modified. A failed selection
// lookup drops the selection rather than failing the listing; the failure
// is still reported by GetCommit.
func (c *Coordinator) withSelection(ws Workspace, result *future.Future[*history.LogPage], selected *future.Future[*history.Commit]) *future.Future[*history.LogPage] {
	return future.Then(c.ctx, result, func(ctx context.Context, page *history.LogPage) (*history.LogPage, error) {
		out := *page
		out.Selected = nil
		if selected == nil {
			return &out, nil
		}
		commit, err := selected.Await(ctx)
		if err != nil {
			c.logger.Warn("selected commit unavailable", "workspace", ws.ID, "err", err)
			return &out, nil
		}
		out.Selected = commit
		return &out, nil
	})
}

func (c *Coordinator) fetchLogPage(ws Workspace, params history.QueryParams) *future.Future[*history.LogPage] {
	logger := c.logger.With("workspace", ws.ID, "fetch", shortFetchID())
	logger.Debug("fetching log page", "params", params)

	return future.Go(c.ctx, func(ctx context.Context) (*history.LogPage, error) {
		ctx, cancel := c.fetchContext(ctx)
		defer cancel()

		start := time.Now()
		page, err := c.source.LogPage(ctx, ws.Path, params)
		if err != nil {
			logger.Warn("log fetch failed", "err", err)
			return nil, history.UpstreamFailure(err, "failed to fetch log entries")
		}
		if page == nil {
			page = &history.LogPage{}
		}
		page.Query = params
		page.Selected = nil
		logger.Debug("log fetch done", "entries", len(page.Entries), "elapsed", time.Since(start))
		return page, nil
	})
}

// GetBranches lists the workspace's branches. Branch lists are not cached.
func (c *Coordinator) GetBranches(id string) (*future.Future[[]history.Branch], error) {
	ws, err := c.Workspace(id)
	if err != nil {
		return nil, err
	}
	return future.Go(c.ctx, func(ctx context.Context) ([]history.Branch, error) {
		ctx, cancel := c.fetchContext(ctx)
		defer cancel()

		branches, err := c.source.Branches(ctx, ws.Path)
		if err != nil {
			c.logger.Warn("branch fetch failed", "workspace", ws.ID, "err", err)
			return nil, history.UpstreamFailure(err, "failed to fetch branches")
		}
		return branches, nil
	}), nil
}

// GetCommit returns the commit for hash. Only the most recent lookup per
// workspace is memoized; asking for a different hash replaces the memo.
func (c *Coordinator) GetCommit(id, hash string) (*future.Future[*history.Commit], error) {
	if hash == "" {
		return nil, history.InvalidArgumentf("commit hash is required")
	}
	ws, err := c.Workspace(id)
	if err != nil {
		return nil, err
	}

	var (
		result  *future.Future[*history.Commit]
		fetched bool
	)
	err = c.store.Update(ws.Path, func(entry *state.CacheEntry) {
		if entry.LastFetchedHash == hash && entry.LastFetchedCommit != nil {
			result = entry.LastFetchedCommit
			return
		}
		result = c.fetchCommit(ws, hash)
		entry.LastFetchedHash = hash
		entry.LastFetchedCommit = result
		fetched = true
	})
	if err != nil {
		return nil, err
	}

	if fetched {
		c.emit(Event{Type: EventSelectionUpdated, WorkspaceID: ws.ID, Hash: hash})
	} else {
		c.logger.Debug("reusing commit", "workspace", ws.ID, "hash", hash)
	}
	return result, nil
}

func (c *Coordinator) fetchCommit(ws Workspace, hash string) *future.Future[*history.Commit] {
	logger := c.logger.With("workspace", ws.ID, "fetch", shortFetchID())
	logger.Debug("fetching commit", "hash", hash)

	return future.Go(c.ctx, func(ctx context.Context) (*history.Commit, error) {
		ctx, cancel := c.fetchContext(ctx)
		defer cancel()

		commit, err := c.source.Commit(ctx, ws.Path, hash)
		if err != nil {
			logger.Warn("commit fetch failed", "hash", hash, "err", err)
			return nil, history.UpstreamFailure(err, "failed to fetch commit "+hash)
		}
		return commit, nil
	})
}

// ClearSelection forgets the memoized commit lookup. Clearing an already
// empty selection is not an error.
func (c *Coordinator) ClearSelection(id string) error {
	ws, err := c.Workspace(id)
	if err != nil {
		return err
	}
	if err := c.store.ClearLastHashCommit(ws.Path); err != nil {
		return err
	}
	c.emit(Event{Type: EventSelectionCleared, WorkspaceID: ws.ID})
	return nil
}

// Close cancels in-flight fetches and disposes the store. Every later call
// fails with InvalidState.
func (c *Coordinator) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.cancel()
		c.closeErr = c.store.Dispose()
	})
	return c.closeErr
}

func (c *Coordinator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.fetchTimeout > 0 {
		return context.WithTimeout(ctx, c.fetchTimeout)
	}
	return context.WithCancel(ctx)
}

func shortFetchID() string {
	return uuid.NewString()[:8]
}
