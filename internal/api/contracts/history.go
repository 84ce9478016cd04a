package contracts

// RegisterWorkspaceRequest is the body of POST /api/workspaces.
type RegisterWorkspaceRequest struct {
	Path string `json:"path"`
}

// Workspace is a registered workspace.
type Workspace struct {
	ID   string `json:"id"`
	Path string `json:"path"`
}

// WorkspacesResponse is returned by GET /api/workspaces.
type WorkspacesResponse struct {
	Workspaces []Workspace `json:"workspaces"`
}

// Signature identifies an author or committer. Date is RFC 3339.
type Signature struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Date  string `json:"date"`
}

// LogEntry is one commit in a listing.
type LogEntry struct {
	Hash      string    `json:"hash"`
	ShortHash string    `json:"short_hash"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body,omitempty"`
	Author    Signature `json:"author"`
	Committer Signature `json:"committer"`
	Parents   []string  `json:"parents"`
	Refs      []string  `json:"refs"`
}

// CommittedFile is one file changed by a commit.
type CommittedFile struct {
	Path         string `json:"path"`
	OriginalPath string `json:"original_path,omitempty"`
	Status       string `json:"status"`
	Additions    int    `json:"additions"`
	Deletions    int    `json:"deletions"`
}

// Commit is returned by GET /api/log/{hash}.
type Commit struct {
	LogEntry
	Files []CommittedFile `json:"files"`
}

// Query echoes the parameters a listing was fetched with. Absent
// parameters are omitted.
type Query struct {
	PageIndex  *int    `json:"page_index,omitempty"`
	PageSize   *int    `json:"page_size,omitempty"`
	Branch     *string `json:"branch,omitempty"`
	SearchText *string `json:"search_text,omitempty"`
	File       *string `json:"file,omitempty"`
}

// LogResponse is returned by GET /api/log.
type LogResponse struct {
	Entries  []LogEntry `json:"entries"`
	Count    int        `json:"count"`
	Query    Query      `json:"query"`
	Selected *Commit    `json:"selected,omitempty"`
}

// Branch is a local or remote branch.
type Branch struct {
	Name    string `json:"name"`
	Hash    string `json:"hash"`
	Current bool   `json:"current,omitempty"`
	Remote  bool   `json:"remote,omitempty"`
}

// BranchesResponse is returned by GET /api/branches.
type BranchesResponse struct {
	Branches []Branch `json:"branches"`
}

// Event types sent over /ws/events.
const (
	EventEntriesUpdated   = "entries_updated"
	EventSelectionUpdated = "selection_updated"
	EventSelectionCleared = "selection_cleared"
	EventRepoChanged      = "repo_changed"
)

// Event is one message on the /ws/events feed.
type Event struct {
	Type        string `json:"type"`
	WorkspaceID string `json:"workspace_id"`
	Query       *Query `json:"query,omitempty"`
	Hash        string `json:"hash,omitempty"`
}

// HealthResponse is returned by GET /api/healthz.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}
