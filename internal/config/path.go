package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "strata"

// DefaultDataDir picks a data directory for the host OS, falling back to a
// dotdir in the user's home and finally to ./data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return "./data"
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appDirName)
	}
	candidates := []struct{ parent, dir string }{
		{"/var/lib", filepath.Join("/var/lib", appDirName)},
		{filepath.Join(home, "Library"), filepath.Join(home, "Library", "Application Support", "Strata")},
		{filepath.Join(home, "AppData"), filepath.Join(home, "AppData", "Local", "Strata")},
	}
	for _, c := range candidates {
		if isDir(c.parent) && isWritable(c.parent) {
			return c.dir
		}
	}
	return filepath.Join(home, "."+appDirName)
}

// ResolveDataDir expands a leading ~, makes dir absolute and creates it.
func ResolveDataDir(dir string) (string, error) {
	if dir == "" {
		dir = DefaultDataDir()
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand %s: %w", dir, err)
		}
		dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	return abs, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// isWritable probes by creating a temp file in dir.
func isWritable(dir string) bool {
	f, err := os.CreateTemp(dir, ".strata-probe-*")
	if err != nil {
		return false
	}
	name := f.Name()
	_ = f.Close()
	_ = os.Remove(name)
	return true
}
