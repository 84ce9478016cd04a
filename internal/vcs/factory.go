package vcs

import (
	"github.com/sergeknystautas/githistory/internal/history"
)

// Backend names accepted by NewSource.
const (
	BackendGoGit = "go-git"
	BackendGit   = "git"
)

// NewSource returns the Source for the given backend.
// Defaults to go-git if backend is empty.
func NewSource(backend string, opts ...Option) (Source, error) {
	switch backend {
	case "", BackendGoGit:
		return NewGoGitSource(opts...), nil
	case BackendGit:
		return NewCLISource(opts...), nil
	default:
		return nil, history.InvalidArgumentf("unknown history backend %q", backend)
	}
}
