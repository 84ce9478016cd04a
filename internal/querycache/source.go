package querycache

import (
	"context"

	"github.com/sergeknystautas/githistory/internal/history"
)

// HistorySource computes log pages, branch lists and commits for a
// workspace. Calls block until the result is available; the Coordinator
// runs them in the background and hands out futures.
type HistorySource interface {
	LogPage(ctx context.Context, workspace string, params history.QueryParams) (*history.LogPage, error)
	Branches(ctx context.Context, workspace string) ([]history.Branch, error)
	Commit(ctx context.Context, workspace, hash string) (*history.Commit, error)
}
