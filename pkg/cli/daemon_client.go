package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sergeknystautas/githistory/internal/api/contracts"
)

// Wire types shared with the daemon.
type (
	Workspace   = contracts.Workspace
	LogResponse = contracts.LogResponse
	LogEntry    = contracts.LogEntry
	Commit      = contracts.Commit
	Branch      = contracts.Branch
)

// LogOptions selects a log page. Zero values are left out of the request.
type LogOptions struct {
	Page     *int
	PageSize *int
	Branch   string
	Search   string
	File     string
	// Refresh bypasses the daemon's cache.
	Refresh bool
}

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("daemon returned status %d (%s): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("daemon returned status %d: %s", e.Status, e.Message)
}

// Client implements DaemonClient for communicating with the githistory daemon.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ DaemonClient = (*Client)(nil)

// NewDaemonClient creates a new daemon client.
func NewDaemonClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetDefaultURL returns the default daemon URL.
func GetDefaultURL() string {
	return "http://localhost:7338"
}

// IsRunning checks if the daemon is running.
func (c *Client) IsRunning() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/healthz", nil)
	if err != nil {
		return false
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// RegisterWorkspace registers a workspace path and returns its id.
func (c *Client) RegisterWorkspace(ctx context.Context, path string) (*Workspace, error) {
	var ws Workspace
	if err := c.do(ctx, http.MethodPost, "/api/workspaces", nil, contracts.RegisterWorkspaceRequest{Path: path}, &ws); err != nil {
		return nil, err
	}
	return &ws, nil
}

// GetWorkspaces lists registered workspaces.
func (c *Client) GetWorkspaces(ctx context.Context) ([]Workspace, error) {
	var resp contracts.WorkspacesResponse
	if err := c.do(ctx, http.MethodGet, "/api/workspaces", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Workspaces, nil
}

// GetLog fetches one page of a workspace's log.
func (c *Client) GetLog(ctx context.Context, workspaceID string, opts LogOptions) (*LogResponse, error) {
	q := url.Values{"workspace": {workspaceID}}
	if opts.Page != nil {
		q.Set("page", strconv.Itoa(*opts.Page))
	}
	if opts.PageSize != nil {
		q.Set("page_size", strconv.Itoa(*opts.PageSize))
	}
	if opts.Branch != "" {
		q.Set("branch", opts.Branch)
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	if opts.File != "" {
		q.Set("file", opts.File)
	}
	if opts.Refresh {
		q.Set("refresh", "1")
	}

	var resp LogResponse
	if err := c.do(ctx, http.MethodGet, "/api/log", q, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetCommit fetches a single commit with its files.
func (c *Client) GetCommit(ctx context.Context, workspaceID, hash string) (*Commit, error) {
	var commit Commit
	q := url.Values{"workspace": {workspaceID}}
	if err := c.do(ctx, http.MethodGet, "/api/log/"+url.PathEscape(hash), q, nil, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

// GetBranches lists local and remote branches.
func (c *Client) GetBranches(ctx context.Context, workspaceID string) ([]Branch, error) {
	var resp contracts.BranchesResponse
	q := url.Values{"workspace": {workspaceID}}
	if err := c.do(ctx, http.MethodGet, "/api/branches", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Branches, nil
}

// ClearSelection forgets the workspace's selected commit.
func (c *Client) ClearSelection(ctx context.Context, workspaceID string) error {
	q := url.Values{"workspace": {workspaceID}}
	return c.do(ctx, http.MethodPost, "/api/log/clearSelection", q, nil, nil)
}

// do sends a request and decodes a JSON response into out (when non-nil).
// A nil ctx gets a 30 second timeout.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	errorBody, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("daemon returned status %d (failed to read error body: %v)", resp.StatusCode, readErr)
	}

	apiErr := &APIError{Status: resp.StatusCode}
	var body struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(errorBody, &body) == nil && body.Message != "" {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	} else {
		apiErr.Message = string(bytes.TrimSpace(errorBody))
	}
	return apiErr
}
