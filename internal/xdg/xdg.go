// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package xdg provides XDG Base Directory paths for canvas.
package xdg

import (
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const appName = "canvas"

// Socket file names inside RuntimeDir.
const (
	PluginSocketName  = "canvas.sock"
	ControlSocketName = "control.sock"
	ConfigFileName    = "config.yaml"
)

func home() (string, error) {
	h := os.Getenv("HOME")
	if h == "" {
		return "", oops.In("xdg").Code("NO_HOME").Errorf("HOME is not set")
	}
	return h, nil
}

func baseDir(env string, fallback ...string) (string, error) {
	if base := os.Getenv(env); base != "" {
		return filepath.Join(base, appName), nil
	}
	h, err := home()
	if err != nil {
		return "", oops.With("env", env).Wrap(err)
	}
	return filepath.Join(append(append([]string{h}, fallback...), appName)...), nil
}

// ConfigDir returns the XDG config directory for canvas.
// Checks XDG_CONFIG_HOME first, falls back to ~/.config.
func ConfigDir() (string, error) {
	return baseDir("XDG_CONFIG_HOME", ".config")
}

// StateDir returns the XDG state directory for canvas.
// Checks XDG_STATE_HOME first, falls back to ~/.local/state.
func StateDir() (string, error) {
	return baseDir("XDG_STATE_HOME", ".local", "state")
}

// RuntimeDir returns the XDG runtime directory for canvas.
// Checks XDG_RUNTIME_DIR first, falls back to StateDir()/run.
func RuntimeDir() (string, error) {
	if base := os.Getenv("XDG_RUNTIME_DIR"); base != "" {
		return filepath.Join(base, appName), nil
	}
	state, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(state, "run"), nil
}

// SocketPath returns the default plugin socket path.
func SocketPath() (string, error) {
	return inRuntimeDir(PluginSocketName)
}

// ControlSocketPath returns the default control socket path.
func ControlSocketPath() (string, error) {
	return inRuntimeDir(ControlSocketName)
}

func inRuntimeDir(name string) (string, error) {
	dir, err := RuntimeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigFile returns the default config file path. The file need not exist.
func ConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, ConfigFileName), nil
}

// EnsureDir creates a directory and all parent directories if they don't exist.
// Directories are created with 0700 permissions.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o700); err != nil {
		return oops.In("xdg").With("path", path).Wrapf(err, "create directory")
	}
	return nil
}
