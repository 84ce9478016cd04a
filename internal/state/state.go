package state

import (
	"sort"
	"sync"

	"github.com/sergeknystautas/githistory/internal/future"
	"github.com/sergeknystautas/githistory/internal/history"
)

// CacheEntry is the cached query state of one workspace.
type CacheEntry struct {
	// Params are the parameters of the most recently issued listing fetch.
	Params history.QueryParams
	// Result is the listing for Params. Nil until the first fetch.
	Result *future.Future[*history.LogPage]

	// LastFetchedHash and LastFetchedCommit memoize the most recent
	// single-commit lookup. Both are empty after a clear.
	LastFetchedHash   string
	LastFetchedCommit *future.Future[*history.Commit]
}

// HasResult reports whether a listing has been fetched for the entry.
func (e CacheEntry) HasResult() bool {
	return e.Result != nil
}

// HasSelection reports whether a commit lookup is memoized.
func (e CacheEntry) HasSelection() bool {
	return e.LastFetchedCommit != nil
}

// slot owns one workspace's entry. Its mutex is the workspace's critical
// section; it is never held while awaiting a future.
type slot struct {
	mu    sync.Mutex
	entry CacheEntry
}

// State holds one CacheEntry per workspace. The map lock is only taken to
// find or create a slot, so workspaces never wait on each other's updates.
type State struct {
	mu       sync.RWMutex
	slots    map[string]*slot
	disposed bool
}

// New creates an empty State.
func New() *State {
	return &State{
		slots: make(map[string]*slot),
	}
}

// slotFor returns the slot for workspace, creating it if absent.
func (s *State) slotFor(workspace string) (*slot, error) {
	if workspace == "" {
		return nil, history.InvalidArgumentf("workspace is required")
	}

	s.mu.RLock()
	if s.disposed {
		s.mu.RUnlock()
		return nil, history.InvalidStatef("state store has been disposed")
	}
	sl, ok := s.slots[workspace]
	s.mu.RUnlock()
	if ok {
		return sl, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, history.InvalidStatef("state store has been disposed")
	}
	if sl, ok := s.slots[workspace]; ok {
		return sl, nil
	}
	sl = &slot{}
	s.slots[workspace] = sl
	return sl, nil
}

// GetState returns a copy of the workspace's entry, creating an empty one
// if needed. Futures are returned as-is.
func (s *State) GetState(workspace string) (CacheEntry, error) {
	sl, err := s.slotFor(workspace)
	if err != nil {
		return CacheEntry{}, err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.entry, nil
}

// Update runs fn inside the workspace's critical section. fn must not block.
func (s *State) Update(workspace string, fn func(entry *CacheEntry)) error {
	sl, err := s.slotFor(workspace)
	if err != nil {
		return err
	}
	sl.mu.Lock()
	defer sl.mu.Unlock()
	fn(&sl.entry)
	return nil
}

// UpdateEntries replaces the listing cache of the workspace.
func (s *State) UpdateEntries(workspace string, result *future.Future[*history.LogPage], params history.QueryParams) error {
	return s.Update(workspace, func(entry *CacheEntry) {
		entry.Params = params
		entry.Result = result
	})
}

// UpdateLastHashCommit replaces the single-commit memo of the workspace.
func (s *State) UpdateLastHashCommit(workspace, hash string, commit *future.Future[*history.Commit]) error {
	return s.Update(workspace, func(entry *CacheEntry) {
		entry.LastFetchedHash = hash
		entry.LastFetchedCommit = commit
	})
}

// ClearLastHashCommit resets the single-commit memo. The clear is visible
// to every read that starts after ClearLastHashCommit returns.
func (s *State) ClearLastHashCommit(workspace string) error {
	return s.Update(workspace, func(entry *CacheEntry) {
		entry.LastFetchedHash = ""
		entry.LastFetchedCommit = nil
	})
}

// Workspaces returns the workspaces that have an entry, sorted.
func (s *State) Workspaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.slots))
	for k := range s.slots {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dispose releases every entry. All later calls fail with InvalidState.
func (s *State) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return history.InvalidStatef("state store has been disposed")
	}
	s.disposed = true
	s.slots = nil
	return nil
}
