package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/rbright/vaani/internal/commands"
)

// Loaded is a resolved config path with its validated values and warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves and parses the runtime configuration, then checks the configured
// language against the command catalogue it names.
func Load(explicitPath string) (Loaded, error) {
	resolvedPath, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: resolvedPath, Config: Default()}
	content, err := os.ReadFile(resolvedPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = append(loaded.Warnings, Warning{
			Message: fmt.Sprintf("config file %q not found; using defaults", resolvedPath),
		})
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", resolvedPath, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", resolvedPath, err)
		}
		loaded.Config = cfg
		loaded.Warnings = warnings
		loaded.Exists = true
	}

	warning, err := checkLanguage(loaded.Config)
	if err != nil {
		return Loaded{}, err
	}
	if warning != nil {
		loaded.Warnings = append(loaded.Warnings, *warning)
	}
	return loaded, nil
}

// checkLanguage fails on an unreadable catalogue and warns when the configured
// language has no pack in it.
func checkLanguage(cfg Config) (*Warning, error) {
	table, err := commands.Load(cfg.Commands.File)
	if err != nil {
		return nil, fmt.Errorf("commands.file: %w", err)
	}
	if table.Has(commands.Language(cfg.Language)) {
		return nil, nil
	}
	return &Warning{Message: fmt.Sprintf(
		"language %q has no command pack; using %q", cfg.Language, table.Languages()[0],
	)}, nil
}
