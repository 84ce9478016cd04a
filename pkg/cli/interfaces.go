package cli

import (
	"context"
)

// DaemonClient is the interface for communicating with the githistory daemon.
type DaemonClient interface {
	// IsRunning checks if the daemon is running.
	IsRunning() bool

	// RegisterWorkspace registers a workspace path and returns its id.
	RegisterWorkspace(ctx context.Context, path string) (*Workspace, error)

	// GetWorkspaces lists registered workspaces.
	GetWorkspaces(ctx context.Context) ([]Workspace, error)

	// GetLog fetches one page of a workspace's log.
	GetLog(ctx context.Context, workspaceID string, opts LogOptions) (*LogResponse, error)

	// GetCommit fetches a single commit with its files.
	GetCommit(ctx context.Context, workspaceID, hash string) (*Commit, error)

	// GetBranches lists local and remote branches.
	GetBranches(ctx context.Context, workspaceID string) ([]Branch, error)

	// ClearSelection forgets the workspace's selected commit.
	ClearSelection(ctx context.Context, workspaceID string) error
}
