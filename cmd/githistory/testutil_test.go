package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/sergeknystautas/githistory/pkg/cli"
)

// MockDaemonClient is a mock implementation of DaemonClient for testing.
type MockDaemonClient struct {
	isRunning   bool
	workspaces  []cli.Workspace
	log         *cli.LogResponse
	commit      *cli.Commit
	branches    []cli.Branch
	registerErr error
	getLogErr   error
	clearErr    error

	registered []string
	lastLogWS  string
	lastLog    cli.LogOptions
	cleared    []string
}

var _ cli.DaemonClient = (*MockDaemonClient)(nil)

func (m *MockDaemonClient) IsRunning() bool {
	return m.isRunning
}

func (m *MockDaemonClient) RegisterWorkspace(ctx context.Context, path string) (*cli.Workspace, error) {
	if m.registerErr != nil {
		return nil, m.registerErr
	}
	m.registered = append(m.registered, path)
	return &cli.Workspace{ID: fmt.Sprintf("ws-%d", len(m.registered)), Path: path}, nil
}

func (m *MockDaemonClient) GetWorkspaces(ctx context.Context) ([]cli.Workspace, error) {
	return m.workspaces, nil
}

func (m *MockDaemonClient) GetLog(ctx context.Context, workspaceID string, opts cli.LogOptions) (*cli.LogResponse, error) {
	m.lastLogWS = workspaceID
	m.lastLog = opts
	if m.getLogErr != nil {
		return nil, m.getLogErr
	}
	if m.log == nil {
		return &cli.LogResponse{}, nil
	}
	return m.log, nil
}

func (m *MockDaemonClient) GetCommit(ctx context.Context, workspaceID, hash string) (*cli.Commit, error) {
	if m.commit == nil || m.commit.Hash != hash {
		return nil, &cli.APIError{Status: 404, Code: "NOT_FOUND", Message: "commit not found: " + hash}
	}
	return m.commit, nil
}

func (m *MockDaemonClient) GetBranches(ctx context.Context, workspaceID string) ([]cli.Branch, error) {
	return m.branches, nil
}

func (m *MockDaemonClient) ClearSelection(ctx context.Context, workspaceID string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	m.cleared = append(m.cleared, workspaceID)
	return nil
}

// newTestCommand returns a command base writing plain text to the returned
// buffer, with the working directory fixed to /src/repo.
func newTestCommand(client *MockDaemonClient) (historyCommand, *bytes.Buffer) {
	var out bytes.Buffer
	base := newHistoryCommand(client, plainStyle(&out))
	base.getwd = func() (string, error) { return "/src/repo", nil }
	return base, &out
}
