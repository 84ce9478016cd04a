package main

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/sergeknystautas/githistory/internal/config"
	"github.com/sergeknystautas/githistory/internal/daemon"
	"github.com/sergeknystautas/githistory/internal/version"
	"github.com/sergeknystautas/githistory/pkg/cli"
)

// runner is a client-side subcommand.
type runner interface {
	Run(args []string) error
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	style := newTermStyle()

	switch command {
	case "start":
		configOk, err := config.EnsureExists()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error checking config: %v\n", err)
			os.Exit(1)
		}
		if !configOk {
			os.Exit(1)
		}
		cfg, err := config.LoadDefault()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := daemon.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		style.Success(fmt.Sprintf("githistory daemon started on %s", style.Cyan(daemonURL(cfg))))

	case "stop":
		if err := daemon.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("githistory daemon stopped")

	case "status":
		cfg := loadConfigOrDefault()
		running, url, startedAt, err := daemon.Status(cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if running {
			fmt.Println("githistory daemon is running")
			style.KeyValue("URL", style.Cyan(url))
			if startedAt != "" {
				style.KeyValue("Started", startedAt)
			}
		} else {
			fmt.Println("githistory daemon is not running")
			os.Exit(1)
		}

	case "daemon-run":
		// This is the entry point for the daemon process
		if err := daemon.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon error: %v\n", err)
			os.Exit(1)
		}

	case "init":
		if err := (&InitCommand{style: style}).Run(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case "register", "workspaces", "log", "show", "branches", "clear":
		client := cli.NewDaemonClient(daemonURL(loadConfigOrDefault()))
		if err := clientCommand(command, client, style).Run(os.Args[2:]); err != nil {
			style.Error(err.Error())
			os.Exit(1)
		}

	case "version", "--version":
		fmt.Println(version.Version)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func clientCommand(name string, client cli.DaemonClient, style *termStyle) runner {
	base := newHistoryCommand(client, style)
	switch name {
	case "register":
		return &RegisterCommand{base}
	case "workspaces":
		return &WorkspacesCommand{base}
	case "log":
		return &LogCommand{base}
	case "show":
		return &ShowCommand{base}
	case "branches":
		return &BranchesCommand{base}
	case "clear":
		return &ClearCommand{base}
	}
	return nil
}

// loadConfigOrDefault falls back to defaults so client commands work
// without a config file.
func loadConfigOrDefault() *config.Config {
	cfg, err := config.LoadDefault()
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func daemonURL(cfg *config.Config) string {
	host := cfg.GetBindAddress()
	if host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.GetPort()))
}

func printUsage() {
	fmt.Println("githistory - cached git history for your workspaces")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  githistory <command> [flags]")
	fmt.Println()
	fmt.Println("Daemon:")
	fmt.Println("  start       Start the daemon in background")
	fmt.Println("  stop        Stop the daemon")
	fmt.Println("  status      Show daemon status and URL")
	fmt.Println("  daemon-run  Run the daemon in foreground (for debugging)")
	fmt.Println("  init        Create or edit the config interactively")
	fmt.Println()
	fmt.Println("History:")
	fmt.Println("  register [path]   Register a workspace (default: current directory)")
	fmt.Println("  workspaces        List registered workspaces")
	fmt.Println("  log               Show a page of commits")
	fmt.Println("  show <hash>       Show one commit and its files")
	fmt.Println("  branches          List local and remote branches")
	fmt.Println("  clear             Forget the selected commit")
	fmt.Println()
	fmt.Println("History commands act on the current directory unless -w <id> is given.")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  githistory start")
	fmt.Println("  githistory log -branch main -n 20")
	fmt.Println("  githistory log -search fix -page 1")
	fmt.Println("  githistory show 3f2a9c1")
}
