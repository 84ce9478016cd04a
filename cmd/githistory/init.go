package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/sergeknystautas/githistory/internal/config"
)

// InitCommand interactively writes ~/.githistory/config.yaml.
type InitCommand struct {
	style *termStyle
}

// Run executes the init command.
func (cmd *InitCommand) Run(args []string) error {
	configPath, err := config.DefaultPath()
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	switch {
	case err == nil:
		overwrite := false
		err := huh.NewConfirm().
			Title("Config already exists").
			Description(configPath).
			Affirmative("Edit it").
			Negative("Cancel").
			Value(&overwrite).
			Run()
		if err != nil {
			return err
		}
		if !overwrite {
			return nil
		}
	case errors.Is(err, config.ErrConfigNotFound):
		cfg = config.CreateDefault(configPath)
	default:
		return err
	}

	cmd.style.Header("githistory setup")

	portStr := strconv.Itoa(cfg.GetPort())
	backend := cfg.GetHistoryBackend()
	addCwd := false
	wd, _ := os.Getwd()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Port").
				Description("Port the daemon listens on (localhost only)").
				Placeholder(strconv.Itoa(config.DefaultPort)).
				Value(&portStr).
				Validate(validatePort),
			huh.NewSelect[string]().
				Title("History backend").
				Options(
					huh.NewOption("go-git (in-process, no git binary needed)", config.BackendGoGit),
					huh.NewOption("git (shell out to the git binary)", config.BackendGit),
				).
				Value(&backend),
			huh.NewConfirm().
				Title("Register this directory at startup?").
				Description(wd).
				Value(&addCwd),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	applyInitAnswers(cfg, portStr, backend, addCwd, wd)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.Save(); err != nil {
		return err
	}

	cmd.style.Success("Saved " + configPath)
	cmd.style.Println("Start the daemon with:")
	cmd.style.Code("githistory start")
	return nil
}

func applyInitAnswers(cfg *config.Config, portStr, backend string, addCwd bool, wd string) {
	if cfg.Network == nil {
		cfg.Network = &config.NetworkConfig{}
	}
	cfg.Network.Port = parsePort(portStr)
	if cfg.History == nil {
		cfg.History = &config.HistoryConfig{}
	}
	cfg.History.Backend = backend
	if addCwd && wd != "" {
		cfg.AddWorkspace(wd)
	}
}

func validatePort(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	port, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

// parsePort returns the port in s, or the default when s is empty.
func parsePort(s string) int {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return config.DefaultPort
	}
	return port
}
