// Package daemon runs the history server in the background and manages
// its pid file.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/sergeknystautas/githistory/internal/config"
	"github.com/sergeknystautas/githistory/internal/dashboard"
	"github.com/sergeknystautas/githistory/internal/logging"
	"github.com/sergeknystautas/githistory/internal/querycache"
	"github.com/sergeknystautas/githistory/internal/state"
	"github.com/sergeknystautas/githistory/internal/vcs"
	"github.com/sergeknystautas/githistory/internal/watch"
)

const (
	pidFileName     = "daemon.pid"
	startedFileName = "daemon.started"
	logFileName     = "daemon.log"

	stopTimeout = 5 * time.Second
)

// Daemon wires the history source, query cache, event hub, watcher and
// HTTP server together.
type Daemon struct {
	config  *config.Config
	logger  *log.Logger
	cache   *querycache.Coordinator
	hub     *dashboard.Hub
	server  *dashboard.Server
	watcher *watch.Watcher // nil when watching is disabled
}

// New builds a daemon from config and registers the configured workspaces.
func New(cfg *config.Config, logger *log.Logger) (*Daemon, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	source, err := vcs.NewSource(cfg.GetHistoryBackend(),
		vcs.WithLogger(logger),
		vcs.WithDefaultPageSize(cfg.GetDefaultPageSize()),
	)
	if err != nil {
		return nil, err
	}

	hub := dashboard.NewHub(logger)
	cache := querycache.New(source, state.New(),
		querycache.WithLogger(logger),
		querycache.WithNotifier(hub.Notify),
		querycache.WithFetchTimeout(cfg.FetchTimeout()),
	)

	watcher, err := watch.New(cfg, hub.Hint, logger)
	if err != nil {
		// The cache works without change hints.
		logger.Warn("repository watching unavailable", "err", err)
	}

	d := &Daemon{
		config:  cfg,
		logger:  logger,
		cache:   cache,
		hub:     hub,
		server:  dashboard.NewServer(cfg, cache, hub, logger),
		watcher: watcher,
	}
	d.server.OnRegister(d.watchWorkspace)

	for _, path := range cfg.GetWorkspaces() {
		id, err := cache.RegisterWorkspace(path)
		if err != nil {
			logger.Warn("skipping configured workspace", "path", path, "err", err)
			continue
		}
		ws, _ := cache.Workspace(id)
		d.watchWorkspace(ws)
		logger.Info("workspace registered", "id", ws.ID, "path", ws.Path)
	}

	return d, nil
}

func (d *Daemon) watchWorkspace(ws querycache.Workspace) {
	if d.watcher == nil {
		return
	}
	if err := d.watcher.AddWorkspace(ws.ID, ws.Path); err != nil {
		d.logger.Warn("not watching workspace", "id", ws.ID, "path", ws.Path, "err", err)
	}
}

// Serve runs until ctx is done or the server fails, then shuts everything
// down.
func (d *Daemon) Serve(ctx context.Context) error {
	if d.watcher != nil {
		d.watcher.Start()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(d.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		d.logger.Info("shutting down")
		if d.watcher != nil {
			d.watcher.Stop()
		}
		return d.server.Stop()
	})
	err := g.Wait()

	if cerr := d.cache.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// Start starts the daemon in the background.
func Start() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	pidFile := filepath.Join(dir, pidFileName)
	if pid, err := readPIDFile(pidFile); err == nil {
		if processAlive(pid) {
			return fmt.Errorf("daemon is already running (PID %d)", pid)
		}
		// Stale
		os.Remove(pidFile)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open daemon log: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(execPath, "daemon-run")
	cmd.Dir, _ = os.Getwd()
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait a bit for daemon to start
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Stop sends SIGTERM to the running daemon and waits for it to exit.
func Stop() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}

	pid, err := readPIDFile(filepath.Join(dir, pidFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("daemon is not running")
		}
		return err
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	// process.Wait() doesn't work for non-child processes.
	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if !processAlive(pid) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("timeout waiting for daemon to stop")
}

// Status reports whether the daemon is running, where it listens and when
// it started.
func Status(cfg *config.Config) (running bool, url string, startedAt string, err error) {
	dir, err := config.Dir()
	if err != nil {
		return false, "", "", err
	}

	pid, err := readPIDFile(filepath.Join(dir, pidFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, "", "", nil
		}
		return false, "", "", err
	}
	if !processAlive(pid) {
		return false, "", "", nil
	}

	url = fmt.Sprintf("http://%s:%d", cfg.GetBindAddress(), cfg.GetPort())
	if data, err := os.ReadFile(filepath.Join(dir, startedFileName)); err == nil {
		startedAt = strings.TrimSpace(string(data))
	}
	return true, url, startedAt, nil
}

// Run is the entry point of the daemon process. It returns after SIGINT or
// SIGTERM.
func Run() error {
	dir, err := config.Dir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	pidFile := filepath.Join(dir, pidFileName)
	if err := writePIDFile(pidFile, os.Getpid()); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	startedAt := time.Now().UTC().Format(time.RFC3339Nano)
	if err := os.WriteFile(filepath.Join(dir, startedFileName), []byte(startedAt+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write daemon start time: %w", err)
	}

	cfg, err := config.LoadDefault()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.GetLogLevel())

	d, err := New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return d.Serve(ctx)
}

func writePIDFile(path string, pid int) error {
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}
	return nil
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to parse PID: %w", err)
	}
	return pid, nil
}

// processAlive sends signal 0 to pid.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
