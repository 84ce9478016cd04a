package vcs

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/sergeknystautas/githistory/internal/history"
)

// GitCommandBuilder implements CommandBuilder for git.
type GitCommandBuilder struct{}

var _ CommandBuilder = GitCommandBuilder{}

func (g GitCommandBuilder) Log(params history.QueryParams, defaultPageSize int) []string {
	skip, size := pageBounds(params, defaultPageSize)
	args := []string{
		"log",
		logFormat,
		"--date-order",
		"--decorate=short",
		fmt.Sprintf("--skip=%d", skip),
		fmt.Sprintf("--max-count=%d", size),
	}
	return append(args, g.selection(params)...)
}

func (g GitCommandBuilder) Count(params history.QueryParams) []string {
	return append([]string{"rev-list", "--count"}, g.selection(params)...)
}

// selection renders the search filter, start revision and path limit
// shared by Log and Count.
func (g GitCommandBuilder) selection(params history.QueryParams) []string {
	var args []string
	if search, ok := params.SearchText.Get(); ok && search != "" {
		args = append(args, "--regexp-ignore-case", "--fixed-strings", "--grep="+search)
	}
	args = append(args, params.Branch.OrElse("HEAD"), "--")
	if file, ok := params.FilePath.Get(); ok && file != "" {
		args = append(args, file)
	}
	return args
}

func (g GitCommandBuilder) Branches() []string {
	return []string{"for-each-ref", "--format=%(HEAD) %(objectname) %(refname)", "refs/heads", "refs/remotes"}
}

func (g GitCommandBuilder) Show(hash string) []string {
	return []string{"show", "--no-patch", "--decorate=short", logFormat, hash, "--"}
}

func (g GitCommandBuilder) NumStat(hash string) []string {
	return []string{"diff-tree", "-r", "-z", "-M", "--root", "--no-commit-id", "--diff-merges=first-parent", "--numstat", hash, "--"}
}

func (g GitCommandBuilder) NameStatus(hash string) []string {
	return []string{"diff-tree", "-r", "-z", "-M", "--root", "--no-commit-id", "--diff-merges=first-parent", "--name-status", hash, "--"}
}

// Runner runs git with args in dir and returns its stdout.
type Runner func(ctx context.Context, dir string, args ...string) (string, error)

func execRunner(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s failed: %w: %s", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s failed: %w", args[0], err)
	}
	return string(output), nil
}

// CLISource reads history by running the git binary in the workspace.
type CLISource struct {
	builder         CommandBuilder
	run             Runner
	defaultPageSize int
	logger          *log.Logger
}

// NewCLISource creates a CLISource.
func NewCLISource(opts ...Option) *CLISource {
	cfg := newSourceConfig("git", opts)
	return &CLISource{
		builder:         GitCommandBuilder{},
		run:             cfg.runner,
		defaultPageSize: cfg.defaultPageSize,
		logger:          cfg.logger,
	}
}

func (s *CLISource) git(ctx context.Context, dir string, args []string) (string, error) {
	s.logger.Debug("running git", "dir", dir, "args", args)
	out, err := s.run(ctx, dir, args...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", err
	}
	return out, nil
}

func (s *CLISource) LogPage(ctx context.Context, workspace string, params history.QueryParams) (*history.LogPage, error) {
	if err := checkRevision(params.Branch.OrElse("")); err != nil {
		return nil, err
	}

	out, err := s.git(ctx, workspace, s.builder.Log(params, s.defaultPageSize))
	if err != nil {
		if isEmptyRepo(err) && !params.Branch.IsSet() {
			return &history.LogPage{Entries: []history.LogEntry{}}, nil
		}
		return nil, wrapError(err, "failed to read log")
	}
	entries := ParseLogOutput(out)

	countOut, err := s.git(ctx, workspace, s.builder.Count(params))
	if err != nil {
		return nil, wrapError(err, "failed to count log entries")
	}
	count, err := strconv.Atoi(strings.TrimSpace(countOut))
	if err != nil {
		return nil, wrapError(err, "failed to parse log count")
	}

	return &history.LogPage{Entries: entries, Count: count}, nil
}

func (s *CLISource) Branches(ctx context.Context, workspace string) ([]history.Branch, error) {
	out, err := s.git(ctx, workspace, s.builder.Branches())
	if err != nil {
		return nil, wrapError(err, "failed to list branches")
	}
	return ParseBranchOutput(out), nil
}

func (s *CLISource) Commit(ctx context.Context, workspace, hash string) (*history.Commit, error) {
	if err := checkRevision(hash); err != nil {
		return nil, err
	}

	out, err := s.git(ctx, workspace, s.builder.Show(hash))
	if err != nil {
		return nil, wrapError(err, "failed to read commit "+hash)
	}
	entries := ParseLogOutput(out)
	if len(entries) == 0 {
		return nil, history.NotFoundf("commit not found: %s", hash)
	}
	full := entries[0].Hash

	nameStatus, err := s.git(ctx, workspace, s.builder.NameStatus(full))
	if err != nil {
		return nil, wrapError(err, "failed to diff commit "+hash)
	}
	numStat, err := s.git(ctx, workspace, s.builder.NumStat(full))
	if err != nil {
		return nil, wrapError(err, "failed to diff commit "+hash)
	}

	files := ParseNameStatus(nameStatus)
	stats := ParseNumStat(numStat)
	for i := range files {
		if st, ok := stats[files[i].Path]; ok {
			files[i].Additions, files[i].Deletions = st.additions, st.deletions
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	if files == nil {
		files = []history.CommittedFile{}
	}

	return &history.Commit{LogEntry: entries[0], Files: files}, nil
}

// checkRevision rejects revisions git would read as options.
func checkRevision(rev string) error {
	if strings.HasPrefix(rev, "-") {
		return history.InvalidArgumentf("invalid revision %q", rev)
	}
	return nil
}

func isEmptyRepo(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not have any commits yet") ||
		strings.Contains(msg, "ambiguous argument 'HEAD'")
}
