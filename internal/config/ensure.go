package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// confirmCreate asks whether to create a config. Replaced in tests.
var confirmCreate = func(path string) (bool, error) {
	create := true
	err := huh.NewConfirm().
		Title("No config file found").
		Description(fmt.Sprintf("Create %s with default settings?", path)).
		Affirmative("Yes, create it").
		Negative("No").
		Value(&create).
		Run()
	return create, err
}

// isInteractive reports whether stdin is a terminal. Replaced in tests.
var isInteractive = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// ConfigExists checks if the config file exists.
func ConfigExists() bool {
	p, err := DefaultPath()
	if err != nil {
		return false
	}
	_, err = os.Stat(p)
	return err == nil
}

// EnsureExists makes sure a config file exists at DefaultPath. On a
// terminal the user is asked first; otherwise the default config is written
// without prompting. Returns false if the user declined.
func EnsureExists() (bool, error) {
	if ConfigExists() {
		return true, nil
	}

	configPath, err := DefaultPath()
	if err != nil {
		return false, err
	}

	if isInteractive() {
		create, err := confirmCreate(configPath)
		if err != nil {
			return false, fmt.Errorf("failed to read response: %w", err)
		}
		if !create {
			fmt.Printf("Config not created. Run `githistory init` or create %s to continue.\n", configPath)
			return false, nil
		}
	}

	cfg := CreateDefault(configPath)
	if err := cfg.Save(); err != nil {
		return false, fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("[config] created at %s\n", configPath)
	return true, nil
}

// LoadDefault loads the config at DefaultPath.
func LoadDefault() (*Config, error) {
	p, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return Load(p)
}
