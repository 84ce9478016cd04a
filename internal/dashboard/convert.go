package dashboard

import (
	"net/url"
	"strconv"
	"time"

	"github.com/sergeknystautas/githistory/internal/api/contracts"
	"github.com/sergeknystautas/githistory/internal/history"
	"github.com/sergeknystautas/githistory/internal/querycache"
)

// Query string keys accepted by /api/log.
const (
	paramWorkspace = "workspace"
	paramPage      = "page"
	paramPageSize  = "page_size"
	paramBranch    = "branch"
	paramSearch    = "search"
	paramFile      = "file"
	paramRefresh   = "refresh"
)

// parseQueryParams reads listing parameters from a query string. A key
// that is missing or empty is absent; "?search=" does not mean "search for
// the empty string".
func parseQueryParams(q url.Values) (history.QueryParams, error) {
	var p history.QueryParams

	intParam := func(key string) (history.Optional[int], error) {
		raw := q.Get(key)
		if raw == "" {
			return history.None[int](), nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return history.None[int](), history.InvalidArgumentf("%s must be a non-negative integer, got %q", key, raw)
		}
		return history.Some(n), nil
	}
	strParam := func(key string) history.Optional[string] {
		if v := q.Get(key); v != "" {
			return history.Some(v)
		}
		return history.None[string]()
	}

	var err error
	if p.PageIndex, err = intParam(paramPage); err != nil {
		return history.QueryParams{}, err
	}
	if p.PageSize, err = intParam(paramPageSize); err != nil {
		return history.QueryParams{}, err
	}
	p.Branch = strParam(paramBranch)
	p.SearchText = strParam(paramSearch)
	p.FilePath = strParam(paramFile)
	return p, nil
}

func toContractQuery(p history.QueryParams) contracts.Query {
	return contracts.Query{
		PageIndex:  p.PageIndex.Ptr(),
		PageSize:   p.PageSize.Ptr(),
		Branch:     p.Branch.Ptr(),
		SearchText: p.SearchText.Ptr(),
		File:       p.FilePath.Ptr(),
	}
}

func toContractSignature(s history.Signature) contracts.Signature {
	out := contracts.Signature{Name: s.Name, Email: s.Email}
	if !s.When.IsZero() {
		out.Date = s.When.Format(time.RFC3339)
	}
	return out
}

func toContractEntry(e history.LogEntry) contracts.LogEntry {
	return contracts.LogEntry{
		Hash:      e.Hash,
		ShortHash: e.ShortHash,
		Subject:   e.Subject,
		Body:      e.Body,
		Author:    toContractSignature(e.Author),
		Committer: toContractSignature(e.Committer),
		Parents:   nonNilStrings(e.Parents),
		Refs:      nonNilStrings(e.Refs),
	}
}

func toContractCommit(c *history.Commit) *contracts.Commit {
	if c == nil {
		return nil
	}
	files := make([]contracts.CommittedFile, 0, len(c.Files))
	for _, f := range c.Files {
		files = append(files, contracts.CommittedFile{
			Path:         f.Path,
			OriginalPath: f.OriginalPath,
			Status:       string(f.Status),
			Additions:    f.Additions,
			Deletions:    f.Deletions,
		})
	}
	return &contracts.Commit{LogEntry: toContractEntry(c.LogEntry), Files: files}
}

func toContractPage(page *history.LogPage) contracts.LogResponse {
	if page == nil {
		return contracts.LogResponse{Entries: []contracts.LogEntry{}}
	}
	entries := make([]contracts.LogEntry, 0, len(page.Entries))
	for _, e := range page.Entries {
		entries = append(entries, toContractEntry(e))
	}
	return contracts.LogResponse{
		Entries:  entries,
		Count:    page.Count,
		Query:    toContractQuery(page.Query),
		Selected: toContractCommit(page.Selected),
	}
}

func toContractBranches(branches []history.Branch) contracts.BranchesResponse {
	out := make([]contracts.Branch, 0, len(branches))
	for _, b := range branches {
		out = append(out, contracts.Branch{Name: b.Name, Hash: b.Hash, Current: b.Current, Remote: b.Remote})
	}
	return contracts.BranchesResponse{Branches: out}
}

func toContractWorkspace(ws querycache.Workspace) contracts.Workspace {
	return contracts.Workspace{ID: ws.ID, Path: ws.Path}
}

func toContractEvent(ev querycache.Event) contracts.Event {
	out := contracts.Event{
		Type:        string(ev.Type),
		WorkspaceID: ev.WorkspaceID,
		Hash:        ev.Hash,
	}
	if ev.Type == querycache.EventEntriesUpdated {
		q := toContractQuery(ev.Params)
		out.Query = &q
	}
	return out
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
