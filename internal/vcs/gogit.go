package vcs

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/sergeknystautas/githistory/internal/history"
)

// Opener opens the repository containing path.
type Opener func(path string) (*gogit.Repository, error)

// PlainOpener opens the repository at path on disk, walking up to find the
// .git directory the way the git CLI does.
func PlainOpener(path string) (*gogit.Repository, error) {
	return gogit.PlainOpenWithOptions(path, &gogit.PlainOpenOptions{DetectDotGit: true})
}

// GoGitSource reads history with go-git.
type GoGitSource struct {
	open            Opener
	defaultPageSize int
	logger          *log.Logger
}

// NewGoGitSource creates a GoGitSource.
func NewGoGitSource(opts ...Option) *GoGitSource {
	cfg := newSourceConfig("go-git", opts)
	return &GoGitSource{
		open:            cfg.opener,
		defaultPageSize: cfg.defaultPageSize,
		logger:          cfg.logger,
	}
}

// LogPage walks history from the requested branch (HEAD when absent) and
// returns one page of commits matching the search text and file filter.
// Count is the number of matching commits across all pages.
func (s *GoGitSource) LogPage(ctx context.Context, workspace string, params history.QueryParams) (*history.LogPage, error) {
	repo, err := s.open(workspace)
	if err != nil {
		return nil, wrapError(err, "failed to open repository")
	}

	from, err := s.startHash(repo, params.Branch)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) && !params.Branch.IsSet() {
			// Repository without commits.
			return &history.LogPage{Entries: []history.LogEntry{}}, nil
		}
		return nil, wrapError(err, "failed to resolve start of history")
	}

	opts := &gogit.LogOptions{From: from, Order: gogit.LogOrderCommitterTime}
	if file, ok := params.FilePath.Get(); ok && file != "" {
		opts.FileName = &file
	}
	iter, err := repo.Log(opts)
	if err != nil {
		return nil, wrapError(err, "failed to read log")
	}
	defer iter.Close()

	refs, err := decorations(repo)
	if err != nil {
		return nil, wrapError(err, "failed to read references")
	}

	search := strings.ToLower(params.SearchText.OrElse(""))
	skip, size := pageBounds(params, s.defaultPageSize)

	page := &history.LogPage{Entries: make([]history.LogEntry, 0, min(size, DefaultPageSize))}
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Message), search) {
			return nil
		}
		if page.Count >= skip && len(page.Entries) < size {
			page.Entries = append(page.Entries, toLogEntry(c, refs[c.Hash]))
		}
		page.Count++
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, wrapError(err, "failed to walk history")
	}

	s.logger.Debug("log page", "workspace", workspace, "entries", len(page.Entries), "count", page.Count)
	return page, nil
}

// startHash resolves the branch to walk from. A branch may be local, remote
// ("origin/main") or any revision git understands.
func (s *GoGitSource) startHash(repo *gogit.Repository, branch history.Optional[string]) (plumbing.Hash, error) {
	name, ok := branch.Get()
	if !ok || name == "" {
		head, err := repo.Head()
		if err != nil {
			return plumbing.ZeroHash, err
		}
		return head.Hash(), nil
	}

	for _, ref := range []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.ReferenceName("refs/remotes/" + name),
	} {
		if r, err := repo.Reference(ref, true); err == nil {
			return r.Hash(), nil
		}
	}
	h, err := repo.ResolveRevision(plumbing.Revision(name))
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return *h, nil
}

// Branches lists local branches followed by remote-tracking branches.
func (s *GoGitSource) Branches(ctx context.Context, workspace string) ([]history.Branch, error) {
	repo, err := s.open(workspace)
	if err != nil {
		return nil, wrapError(err, "failed to open repository")
	}

	var current plumbing.ReferenceName
	if head, err := repo.Head(); err == nil {
		current = head.Name()
	}

	iter, err := repo.References()
	if err != nil {
		return nil, wrapError(err, "failed to read references")
	}
	defer iter.Close()

	var local, remote []history.Branch
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case name.IsBranch():
			local = append(local, history.Branch{
				Name:    name.Short(),
				Hash:    ref.Hash().String(),
				Current: name == current,
			})
		case name.IsRemote():
			remote = append(remote, history.Branch{
				Name:   name.Short(),
				Hash:   ref.Hash().String(),
				Remote: true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError(err, "failed to list branches")
	}

	sortBranches(local)
	sortBranches(remote)
	return append(local, remote...), nil
}

// Commit returns one commit with the files it changed relative to its
// first parent. hash may be abbreviated.
func (s *GoGitSource) Commit(ctx context.Context, workspace, hash string) (*history.Commit, error) {
	repo, err := s.open(workspace)
	if err != nil {
		return nil, wrapError(err, "failed to open repository")
	}

	h, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return nil, wrapError(err, "failed to resolve commit "+hash)
	}
	c, err := repo.CommitObject(*h)
	if err != nil {
		return nil, wrapError(err, "failed to read commit "+hash)
	}

	refs, err := decorations(repo)
	if err != nil {
		return nil, wrapError(err, "failed to read references")
	}

	files, err := changedFiles(ctx, c)
	if err != nil {
		return nil, wrapError(err, "failed to diff commit "+hash)
	}

	return &history.Commit{LogEntry: toLogEntry(c, refs[c.Hash]), Files: files}, nil
}

func changedFiles(ctx context.Context, c *object.Commit) ([]history.CommittedFile, error) {
	tree, err := c.Tree()
	if err != nil {
		return nil, err
	}
	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return nil, err
		}
	}

	changes, err := object.DiffTreeWithOptions(ctx, parentTree, tree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, err
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return nil, err
	}
	stats := make(map[string]object.FileStat)
	for _, st := range patch.Stats() {
		stats[st.Name] = st
	}

	files := make([]history.CommittedFile, 0, len(changes))
	for _, ch := range changes {
		action, err := ch.Action()
		if err != nil {
			return nil, err
		}
		f := history.CommittedFile{}
		statKey := ""
		switch {
		case action == merkletrie.Insert:
			f.Path, f.Status = ch.To.Name, history.FileAdded
			statKey = ch.To.Name
		case action == merkletrie.Delete:
			f.Path, f.Status = ch.From.Name, history.FileDeleted
			statKey = ch.From.Name
		case ch.From.Name != ch.To.Name:
			f.Path, f.OriginalPath, f.Status = ch.To.Name, ch.From.Name, history.FileRenamed
			statKey = ch.From.Name + " => " + ch.To.Name
		default:
			f.Path, f.Status = ch.To.Name, history.FileModified
			statKey = ch.To.Name
		}
		if st, ok := stats[statKey]; ok {
			f.Additions, f.Deletions = st.Addition, st.Deletion
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// decorations maps commit hashes to the names pointing at them, in the
// style of git log --decorate.
func decorations(repo *gogit.Repository) (map[plumbing.Hash][]string, error) {
	out := make(map[plumbing.Hash][]string)
	if head, err := repo.Head(); err == nil {
		out[head.Hash()] = append(out[head.Hash()], "HEAD")
	}

	iter, err := repo.References()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name := ref.Name()
		switch {
		case name.IsBranch(), name.IsRemote():
			out[ref.Hash()] = append(out[ref.Hash()], name.Short())
		case name.IsTag():
			target := ref.Hash()
			if tag, err := repo.TagObject(target); err == nil {
				target = tag.Target
			}
			out[target] = append(out[target], "tag: "+name.Short())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for h := range out {
		sortRefs(out[h])
	}
	return out, nil
}

func toLogEntry(c *object.Commit, refs []string) history.LogEntry {
	subject, body := splitMessage(c.Message)
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	hash := c.Hash.String()
	return history.LogEntry{
		Hash:      hash,
		ShortHash: hash[:7],
		Subject:   subject,
		Body:      body,
		Author:    history.Signature{Name: c.Author.Name, Email: c.Author.Email, When: c.Author.When},
		Committer: history.Signature{Name: c.Committer.Name, Email: c.Committer.Email, When: c.Committer.When},
		Parents:   parents,
		Refs:      append([]string(nil), refs...),
	}
}

func splitMessage(message string) (subject, body string) {
	message = strings.TrimSpace(message)
	subject, body, _ = strings.Cut(message, "\n")
	return strings.TrimSpace(subject), strings.TrimSpace(body)
}

// sortRefs puts HEAD first, then branches, then tags.
func sortRefs(refs []string) {
	rank := func(r string) int {
		switch {
		case r == "HEAD":
			return 0
		case strings.HasPrefix(r, "tag: "):
			return 2
		default:
			return 1
		}
	}
	sort.SliceStable(refs, func(i, j int) bool {
		ri, rj := rank(refs[i]), rank(refs[j])
		if ri != rj {
			return ri < rj
		}
		return refs[i] < refs[j]
	})
}

func sortBranches(b []history.Branch) {
	sort.Slice(b, func(i, j int) bool { return b[i].Name < b[j].Name })
}
