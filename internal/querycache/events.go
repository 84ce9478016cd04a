package querycache

import "github.com/sergeknystautas/githistory/internal/history"

// EventType names a cache change.
type EventType string

const (
	// EventEntriesUpdated is emitted when a new listing fetch is installed.
	EventEntriesUpdated EventType = "entries_updated"
	// EventSelectionUpdated is emitted when a new commit lookup is installed.
	EventSelectionUpdated EventType = "selection_updated"
	// EventSelectionCleared is emitted when the commit memo is cleared.
	EventSelectionCleared EventType = "selection_cleared"
)

// Event describes a change to a workspace's cache entry.
type Event struct {
	Type        EventType
	WorkspaceID string
	Params      history.QueryParams
	Hash        string
}

func (c *Coordinator) emit(ev Event) {
	if c.notify != nil {
		c.notify(ev)
	}
}
