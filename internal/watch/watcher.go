// Package watch notices when a workspace's git metadata changes on disk
// (commits, checkouts, fetches) and reports it after a debounce. It never
// touches the query cache itself.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/sergeknystautas/githistory/internal/config"
	"github.com/sergeknystautas/githistory/internal/logging"
)

// Watcher watches .git metadata directories and calls onChange once per
// burst of changes for each affected workspace.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func(workspaceID string)
	logger   *log.Logger

	// watchedPaths maps watched filesystem paths to workspace IDs.
	// Worktrees of one base repo share its refs/ directory.
	watchedPaths   map[string][]string
	watchedPathsMu sync.Mutex

	debounceTimers   map[string]*time.Timer
	debounceTimersMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a watcher. Returns nil, nil if watching is disabled in
// config.
func New(cfg *config.Config, onChange func(workspaceID string), logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.WithPrefix("git-watcher")

	if !cfg.GetWatchEnabled() {
		logger.Info("disabled by config")
		return nil, nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		watcher:        w,
		debounce:       cfg.WatchDebounce(),
		onChange:       onChange,
		logger:         logger,
		watchedPaths:   make(map[string][]string),
		debounceTimers: make(map[string]*time.Timer),
		stopCh:         make(chan struct{}),
	}, nil
}

// Start launches the event loop goroutine.
func (w *Watcher) Start() {
	go w.eventLoop()
	w.logger.Debug("started")
}

// Stop closes the watcher and cancels pending timers. Safe to call
// multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()

		w.debounceTimersMu.Lock()
		for _, t := range w.debounceTimers {
			t.Stop()
		}
		w.debounceTimersMu.Unlock()

		w.logger.Debug("stopped")
	})
}

// AddWorkspace watches a workspace's git metadata.
func (w *Watcher) AddWorkspace(workspaceID, workspacePath string) error {
	gitDir, err := resolveGitDir(workspacePath)
	if err != nil {
		return err
	}

	// The gitdir itself covers HEAD and packed-refs.
	w.addWatch(gitDir, workspaceID)

	refsDir := filepath.Join(gitDir, "refs")
	w.watchRecursive(refsDir, workspaceID)
	w.watchRecursive(filepath.Join(gitDir, "logs"), workspaceID)

	if baseRefsDir := resolveSharedBaseRefs(gitDir); baseRefsDir != "" && baseRefsDir != refsDir {
		w.watchRecursive(baseRefsDir, workspaceID)
	}

	w.logger.Info("watching", "workspace", workspaceID, "gitdir", gitDir)
	return nil
}

// RemoveWorkspace drops a workspace's watches and its pending timer.
func (w *Watcher) RemoveWorkspace(workspaceID string) {
	w.watchedPathsMu.Lock()
	var pathsToRemove []string
	for path, ids := range w.watchedPaths {
		filtered := slices.DeleteFunc(slices.Clone(ids), func(id string) bool { return id == workspaceID })
		if len(filtered) == 0 {
			pathsToRemove = append(pathsToRemove, path)
			delete(w.watchedPaths, path)
		} else {
			w.watchedPaths[path] = filtered
		}
	}
	w.watchedPathsMu.Unlock()

	for _, path := range pathsToRemove {
		w.watcher.Remove(path)
	}

	w.debounceTimersMu.Lock()
	if t, ok := w.debounceTimers[workspaceID]; ok {
		t.Stop()
		delete(w.debounceTimers, workspaceID)
	}
	w.debounceTimersMu.Unlock()

	w.logger.Debug("unwatched", "workspace", workspaceID)
}

func (w *Watcher) eventLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", "err", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	// git writes foo.lock and renames it over foo; the rename is enough.
	if strings.HasSuffix(event.Name, ".lock") {
		return
	}

	// New refs subdirectories (a new remote, a/b branch names).
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			w.watchedPathsMu.Lock()
			ids := slices.Clone(w.watchedPaths[filepath.Dir(event.Name)])
			w.watchedPathsMu.Unlock()

			for _, id := range ids {
				w.watchRecursive(event.Name, id)
			}
		}
	}

	for _, id := range w.findWorkspaceIDs(event.Name) {
		w.resetDebounce(id)
	}
}

// findWorkspaceIDs returns the workspaces watching path or its nearest
// watched ancestor.
func (w *Watcher) findWorkspaceIDs(path string) []string {
	w.watchedPathsMu.Lock()
	defer w.watchedPathsMu.Unlock()

	if ids, ok := w.watchedPaths[path]; ok {
		return slices.Clone(ids)
	}

	dir := filepath.Dir(path)
	for dir != "/" && dir != "." {
		if ids, ok := w.watchedPaths[dir]; ok {
			return slices.Clone(ids)
		}
		dir = filepath.Dir(dir)
	}
	return nil
}

func (w *Watcher) resetDebounce(workspaceID string) {
	w.debounceTimersMu.Lock()
	defer w.debounceTimersMu.Unlock()

	if t, ok := w.debounceTimers[workspaceID]; ok {
		t.Reset(w.debounce)
		return
	}

	w.debounceTimers[workspaceID] = time.AfterFunc(w.debounce, func() {
		select {
		case <-w.stopCh:
			return
		default:
		}
		w.logger.Debug("repository changed", "workspace", workspaceID)
		if w.onChange != nil {
			w.onChange(workspaceID)
		}
	})
}

func (w *Watcher) addWatch(path string, workspaceID string) {
	if _, err := os.Stat(path); err != nil {
		return
	}

	w.watchedPathsMu.Lock()
	ids := w.watchedPaths[path]
	needsAdd := len(ids) == 0
	if !slices.Contains(ids, workspaceID) {
		w.watchedPaths[path] = append(ids, workspaceID)
	}
	w.watchedPathsMu.Unlock()

	if needsAdd {
		if err := w.watcher.Add(path); err != nil {
			w.logger.Warn("failed to watch", "path", path, "err", err)
		}
	}
}

func (w *Watcher) watchRecursive(dir string, workspaceID string) {
	if _, err := os.Stat(dir); err != nil {
		return
	}

	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			w.addWatch(path, workspaceID)
		}
		return nil
	})
}

// resolveGitDir returns the .git directory for a workspace path. For
// worktrees .git is a file containing "gitdir: <path>".
func resolveGitDir(workspacePath string) (string, error) {
	dotGit := filepath.Join(workspacePath, ".git")

	info, err := os.Lstat(dotGit)
	if err != nil {
		return "", fmt.Errorf("no .git found: %w", err)
	}
	if info.IsDir() {
		return dotGit, nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("failed to read .git file: %w", err)
	}

	content := strings.TrimSpace(string(data))
	gitDir, ok := strings.CutPrefix(content, "gitdir: ")
	if !ok {
		return "", fmt.Errorf("unexpected .git file content: %s", content)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(workspacePath, gitDir)
	}
	gitDir = filepath.Clean(gitDir)

	if _, err := os.Stat(gitDir); err != nil {
		return "", fmt.Errorf("resolved gitdir does not exist: %s: %w", gitDir, err)
	}
	return gitDir, nil
}

// resolveSharedBaseRefs returns <base>/refs for a worktree gitdir of the
// form <base>/worktrees/<name>, or "" otherwise.
func resolveSharedBaseRefs(gitDir string) string {
	dir := filepath.Dir(gitDir)
	if filepath.Base(dir) != "worktrees" {
		return ""
	}

	refsDir := filepath.Join(filepath.Dir(dir), "refs")
	if _, err := os.Stat(refsDir); err != nil {
		return ""
	}
	return refsDir
}
