// Package vcs reads commit history out of git workspaces. Two backends are
// provided: GoGitSource reads the object store in-process with go-git, and
// CLISource shells out to the git binary. Both satisfy Source.
package vcs

import (
	"context"
	"math"

	"github.com/charmbracelet/log"

	"github.com/sergeknystautas/githistory/internal/history"
	"github.com/sergeknystautas/githistory/internal/logging"
)

// DefaultPageSize is used when a query does not carry a page size.
const DefaultPageSize = 100

// Source computes history for a workspace path.
type Source interface {
	LogPage(ctx context.Context, workspace string, params history.QueryParams) (*history.LogPage, error)
	Branches(ctx context.Context, workspace string) ([]history.Branch, error)
	Commit(ctx context.Context, workspace, hash string) (*history.Commit, error)
}

// CommandBuilder builds git argument lists for history queries. Arguments
// are returned without the leading "git" and are never passed to a shell.
type CommandBuilder interface {
	// Log returns the arguments for one page of log output in the format
	// understood by ParseLogOutput.
	Log(params history.QueryParams, defaultPageSize int) []string
	// Count returns the arguments to count the commits matching params.
	Count(params history.QueryParams) []string
	// Branches lists local and remote branches for ParseBranchOutput.
	Branches() []string
	// Show returns the header of a single commit in log format.
	Show(hash string) []string
	// NumStat and NameStatus describe the files changed by a commit.
	NumStat(hash string) []string
	NameStatus(hash string) []string
}

type sourceConfig struct {
	logger          *log.Logger
	defaultPageSize int
	opener          Opener
	runner          Runner
}

// Option configures a Source.
type Option func(*sourceConfig)

// WithLogger sets the logger. The source adds its own prefix.
func WithLogger(logger *log.Logger) Option {
	return func(c *sourceConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithDefaultPageSize overrides DefaultPageSize.
func WithDefaultPageSize(n int) Option {
	return func(c *sourceConfig) {
		if n > 0 {
			c.defaultPageSize = n
		}
	}
}

// WithOpener replaces how GoGitSource opens repositories.
func WithOpener(open Opener) Option {
	return func(c *sourceConfig) {
		if open != nil {
			c.opener = open
		}
	}
}

// WithRunner replaces how CLISource runs git.
func WithRunner(run Runner) Option {
	return func(c *sourceConfig) {
		if run != nil {
			c.runner = run
		}
	}
}

func newSourceConfig(prefix string, opts []Option) sourceConfig {
	cfg := sourceConfig{
		logger:          logging.Discard(),
		defaultPageSize: DefaultPageSize,
		opener:          PlainOpener,
		runner:          execRunner,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.logger = cfg.logger.WithPrefix(prefix)
	return cfg
}

// pageBounds returns how many matching commits to skip and the page size.
// Offsets past math.MaxInt saturate, which yields an empty page.
func pageBounds(params history.QueryParams, defaultPageSize int) (skip, size int) {
	size = params.PageSize.OrElse(defaultPageSize)
	if size <= 0 {
		size = defaultPageSize
	}
	index := params.PageIndex.OrElse(0)
	if index < 0 {
		index = 0
	}
	if index > math.MaxInt/size {
		return math.MaxInt, size
	}
	return index * size, size
}
