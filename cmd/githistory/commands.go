package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergeknystautas/githistory/pkg/cli"
)

var errDaemonNotRunning = errors.New("daemon is not running. Start it with: githistory start")

// historyCommand holds what every client-side command needs.
type historyCommand struct {
	client cli.DaemonClient
	style  *termStyle
	getwd  func() (string, error)
}

func newHistoryCommand(client cli.DaemonClient, style *termStyle) historyCommand {
	return historyCommand{client: client, style: style, getwd: os.Getwd}
}

func (c historyCommand) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.style.out)
	return fs
}

// workspaceID returns id, or registers the current directory when id is
// empty. Registration is idempotent, so this is also how a path is looked up.
func (c historyCommand) workspaceID(ctx context.Context, id string) (string, error) {
	if !c.client.IsRunning() {
		return "", errDaemonNotRunning
	}
	if id != "" {
		return id, nil
	}
	wd, err := c.getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	ws, err := c.client.RegisterWorkspace(ctx, wd)
	if err != nil {
		return "", fmt.Errorf("failed to register %s: %w", wd, err)
	}
	return ws.ID, nil
}

func (c historyCommand) writeJSON(v any) error {
	enc := json.NewEncoder(c.style.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RegisterCommand implements `githistory register [path]`.
type RegisterCommand struct{ historyCommand }

// Run executes the register command.
func (cmd *RegisterCommand) Run(args []string) error {
	if !cmd.client.IsRunning() {
		return errDaemonNotRunning
	}
	path := ""
	if len(args) > 0 {
		path = args[0]
	} else {
		wd, err := cmd.getwd()
		if err != nil {
			return fmt.Errorf("failed to get working directory: %w", err)
		}
		path = wd
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	ctx := context.Background()
	known := make(map[string]bool)
	if list, err := cmd.client.GetWorkspaces(ctx); err == nil {
		for _, ws := range list {
			known[ws.ID] = true
		}
	}

	ws, err := cmd.client.RegisterWorkspace(ctx, abs)
	if err != nil {
		return fmt.Errorf("failed to register workspace: %w", err)
	}
	if known[ws.ID] {
		cmd.style.Warn(fmt.Sprintf("%s is already registered as %s", ws.Path, ws.ID))
		return nil
	}
	cmd.style.Success(fmt.Sprintf("Registered %s as %s", ws.Path, cmd.style.Bold(ws.ID)))
	return nil
}

// WorkspacesCommand implements `githistory workspaces`.
type WorkspacesCommand struct{ historyCommand }

// Run executes the workspaces command.
func (cmd *WorkspacesCommand) Run(args []string) error {
	if !cmd.client.IsRunning() {
		return errDaemonNotRunning
	}
	list, err := cmd.client.GetWorkspaces(context.Background())
	if err != nil {
		return fmt.Errorf("failed to get workspaces: %w", err)
	}
	if len(list) == 0 {
		cmd.style.Println(cmd.style.Dim("No workspaces registered."))
		return nil
	}
	for _, ws := range list {
		cmd.style.Printf("%-14s %s\n", cmd.style.Bold(ws.ID), ws.Path)
	}
	return nil
}

// LogCommand implements `githistory log`.
type LogCommand struct{ historyCommand }

// Run executes the log command.
func (cmd *LogCommand) Run(args []string) error {
	fs := cmd.flags("log")
	var (
		workspace = fs.String("w", "", "workspace id (default: current directory)")
		page      = fs.Int("page", -1, "page index")
		pageSize  = fs.Int("n", -1, "page size")
		branch    = fs.String("branch", "", "branch or revision")
		search    = fs.String("search", "", "case-insensitive message search")
		file      = fs.String("file", "", "only commits touching this path")
		refresh   = fs.Bool("refresh", false, "bypass the daemon cache")
		asJSON    = fs.Bool("json", false, "print JSON")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	id, err := cmd.workspaceID(ctx, *workspace)
	if err != nil {
		return err
	}

	opts := cli.LogOptions{Branch: *branch, Search: *search, File: *file, Refresh: *refresh}
	if *page >= 0 {
		opts.Page = page
	}
	if *pageSize > 0 {
		opts.PageSize = pageSize
	}

	resp, err := cmd.client.GetLog(ctx, id, opts)
	if err != nil {
		return fmt.Errorf("failed to get log: %w", err)
	}
	if *asJSON {
		return cmd.writeJSON(resp)
	}

	if len(resp.Entries) == 0 && resp.Count > 0 {
		cmd.style.Warn(fmt.Sprintf("page %d is past the last of %d commits", max(*page, 0), resp.Count))
	}
	for _, e := range resp.Entries {
		cmd.style.Println(cmd.formatEntry(e))
	}
	cmd.style.Println(cmd.style.Dim(fmt.Sprintf("%d of %d commits", len(resp.Entries), resp.Count)))
	if resp.Selected != nil {
		cmd.style.Println(cmd.style.Dim("selected: " + resp.Selected.ShortHash + " " + resp.Selected.Subject))
	}
	return nil
}

func (cmd *LogCommand) formatEntry(e cli.LogEntry) string {
	line := cmd.style.Yellow(e.ShortHash) + " " + cmd.style.Dim(shortDate(e.Author.Date)) + " " + e.Subject
	if len(e.Refs) > 0 {
		line += " " + cmd.style.Cyan("("+strings.Join(e.Refs, ", ")+")")
	}
	return line + " " + cmd.style.Dim("<"+e.Author.Name+">")
}

func shortDate(rfc3339 string) string {
	t, err := time.Parse(time.RFC3339, rfc3339)
	if err != nil {
		return rfc3339
	}
	return t.Format(time.DateOnly)
}

// ShowCommand implements `githistory show <hash>`.
type ShowCommand struct{ historyCommand }

// Run executes the show command.
func (cmd *ShowCommand) Run(args []string) error {
	fs := cmd.flags("show")
	workspace := fs.String("w", "", "workspace id (default: current directory)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: githistory show [-w id] [-json] <hash>")
	}

	ctx := context.Background()
	id, err := cmd.workspaceID(ctx, *workspace)
	if err != nil {
		return err
	}
	commit, err := cmd.client.GetCommit(ctx, id, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to get commit: %w", err)
	}
	if *asJSON {
		return cmd.writeJSON(commit)
	}

	cmd.style.Println(cmd.style.Yellow("commit " + commit.Hash))
	if len(commit.Refs) > 0 {
		cmd.style.KeyValue("Refs", strings.Join(commit.Refs, ", "))
	}
	cmd.style.KeyValue("Author", fmt.Sprintf("%s <%s>", commit.Author.Name, commit.Author.Email))
	cmd.style.KeyValue("Date", commit.Author.Date)
	if len(commit.Parents) > 1 {
		cmd.style.KeyValue("Merge", strings.Join(commit.Parents, " "))
	}
	cmd.style.Blank()
	cmd.style.Println("    " + commit.Subject)
	if commit.Body != "" {
		cmd.style.Blank()
		for _, line := range strings.Split(strings.TrimRight(commit.Body, "\n"), "\n") {
			cmd.style.Println("    " + line)
		}
	}
	cmd.style.Blank()
	for _, f := range commit.Files {
		path := f.Path
		if f.OriginalPath != "" {
			path = f.OriginalPath + " => " + f.Path
		}
		cmd.style.Printf("%s  %s %s  %s\n", cmd.style.Bold(f.Status),
			cmd.style.Green(fmt.Sprintf("+%d", f.Additions)), cmd.style.Red(fmt.Sprintf("-%d", f.Deletions)), path)
	}
	return nil
}

// BranchesCommand implements `githistory branches`.
type BranchesCommand struct{ historyCommand }

// Run executes the branches command.
func (cmd *BranchesCommand) Run(args []string) error {
	fs := cmd.flags("branches")
	workspace := fs.String("w", "", "workspace id (default: current directory)")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	id, err := cmd.workspaceID(ctx, *workspace)
	if err != nil {
		return err
	}
	branches, err := cmd.client.GetBranches(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get branches: %w", err)
	}
	if *asJSON {
		return cmd.writeJSON(branches)
	}

	for _, b := range branches {
		marker := "  "
		name := b.Name
		if b.Current {
			marker = "* "
			name = cmd.style.Green(name)
		} else if b.Remote {
			name = cmd.style.Red(name)
		}
		short := b.Hash
		if len(short) > 7 {
			short = short[:7]
		}
		cmd.style.Printf("%s%s %s\n", marker, name, cmd.style.Dim(short))
	}
	return nil
}

// ClearCommand implements `githistory clear`.
type ClearCommand struct{ historyCommand }

// Run executes the clear command.
func (cmd *ClearCommand) Run(args []string) error {
	fs := cmd.flags("clear")
	workspace := fs.String("w", "", "workspace id (default: current directory)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	id, err := cmd.workspaceID(ctx, *workspace)
	if err != nil {
		return err
	}
	if err := cmd.client.ClearSelection(ctx, id); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	cmd.style.Success("Selection cleared")
	return nil
}
