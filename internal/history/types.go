// Package history defines the value types exchanged between the query cache,
// the history sources and the transport layer.
package history

import (
	"fmt"
	"strings"
	"time"
)

// Optional is a value that may be absent. The zero Optional is absent.
// Optionals are comparable, and an absent Optional never equals a present one,
// even when the present value is the zero value of T.
type Optional[T comparable] struct {
	value T
	set   bool
}

// Some returns a present Optional holding v.
func Some[T comparable](v T) Optional[T] {
	return Optional[T]{value: v, set: true}
}

// None returns an absent Optional.
func None[T comparable]() Optional[T] {
	return Optional[T]{}
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the value is present.
func (o Optional[T]) IsSet() bool {
	return o.set
}

// OrElse returns the value if present, otherwise def.
func (o Optional[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// Ptr returns a pointer to a copy of the value, or nil when absent.
func (o Optional[T]) Ptr() *T {
	if !o.set {
		return nil
	}
	v := o.value
	return &v
}

// FromPtr converts a nil-able pointer into an Optional.
func FromPtr[T comparable](p *T) Optional[T] {
	if p == nil {
		return Optional[T]{}
	}
	return Some(*p)
}

// QueryParams describes one log-listing request. Two QueryParams are
// equivalent iff they are == (every field equal, absent matching only absent).
type QueryParams struct {
	PageIndex  Optional[int]
	PageSize   Optional[int]
	Branch     Optional[string]
	SearchText Optional[string]
	FilePath   Optional[string]
}

// Equal reports whether p and other are equivalent.
func (p QueryParams) Equal(other QueryParams) bool {
	return p == other
}

// IsEmpty reports whether every field is absent.
func (p QueryParams) IsEmpty() bool {
	return p == QueryParams{}
}

// HasViewOverride reports whether the caller asked for a specific page,
// page size, search or file. Branch is deliberately not part of this check;
// it is compared against the cached branch separately.
func (p QueryParams) HasViewOverride() bool {
	return p.PageIndex.IsSet() || p.PageSize.IsSet() || p.SearchText.IsSet() || p.FilePath.IsSet()
}

// String renders the present fields, e.g. "branch=main page=2".
func (p QueryParams) String() string {
	var parts []string
	if v, ok := p.Branch.Get(); ok {
		parts = append(parts, "branch="+v)
	}
	if v, ok := p.PageIndex.Get(); ok {
		parts = append(parts, fmt.Sprintf("page=%d", v))
	}
	if v, ok := p.PageSize.Get(); ok {
		parts = append(parts, fmt.Sprintf("size=%d", v))
	}
	if v, ok := p.SearchText.Get(); ok {
		parts = append(parts, fmt.Sprintf("search=%q", v))
	}
	if v, ok := p.FilePath.Get(); ok {
		parts = append(parts, "file="+v)
	}
	if len(parts) == 0 {
		return "{}"
	}
	return strings.Join(parts, " ")
}

// Signature identifies who authored or committed a change.
type Signature struct {
	Name  string
	Email string
	When  time.Time
}

// LogEntry is one commit as shown in a log listing.
type LogEntry struct {
	Hash      string
	ShortHash string
	Subject   string
	Body      string
	Author    Signature
	Committer Signature
	Parents   []string
	Refs      []string
}

// FileStatus describes how a file changed in a commit.
type FileStatus string

const (
	FileAdded    FileStatus = "A"
	FileModified FileStatus = "M"
	FileDeleted  FileStatus = "D"
	FileRenamed  FileStatus = "R"
)

// CommittedFile is one file touched by a commit.
type CommittedFile struct {
	Path         string
	OriginalPath string
	Status       FileStatus
	Additions    int
	Deletions    int
}

// Commit is a single commit with its file changes.
type Commit struct {
	LogEntry
	Files []CommittedFile
}

// LogPage is one page of a log listing together with the query that
// produced it.
type LogPage struct {
	Entries []LogEntry
	// Count is the total number of entries matching the query, across pages.
	Count int
	Query QueryParams
	// Selected is only populated when the page is served from the cache as
	// "whatever was last shown".
	Selected *Commit
}

// Branch is a local or remote branch head.
type Branch struct {
	Name    string
	Hash    string
	Current bool
	Remote  bool
}
