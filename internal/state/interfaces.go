package state

import (
	"github.com/sergeknystautas/githistory/internal/future"
	"github.com/sergeknystautas/githistory/internal/history"
)

// StateStore defines the per-workspace query cache.
type StateStore interface {
	// Reads
	GetState(workspace string) (CacheEntry, error)
	Workspaces() []string

	// Listing cache
	UpdateEntries(workspace string, result *future.Future[*history.LogPage], params history.QueryParams) error

	// Single-commit memo
	UpdateLastHashCommit(workspace, hash string, commit *future.Future[*history.Commit]) error
	ClearLastHashCommit(workspace string) error

	// Update runs fn inside the workspace's critical section.
	Update(workspace string, fn func(entry *CacheEntry)) error

	// Lifecycle
	Dispose() error
}

// Ensure State implements StateStore at compile time.
var _ StateStore = (*State)(nil)
