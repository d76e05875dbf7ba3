package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Application directory name used on every platform.
const appName = "alipan-save"

const configFileName = "config.toml"

// DefaultConfigDir returns the directory holding config.toml:
// $XDG_CONFIG_HOME/alipan-save on Linux (default ~/.config/alipan-save),
// ~/Library/Application Support/alipan-save on macOS.
func DefaultConfigDir() string {
	return appDir("XDG_CONFIG_HOME", ".config")
}

// DefaultDataDir returns the directory holding the history database:
// $XDG_DATA_HOME/alipan-save on Linux (default ~/.local/share/alipan-save).
// macOS keeps config and data in the same directory.
func DefaultDataDir() string {
	return appDir("XDG_DATA_HOME", ".local", "share")
}

// appDir resolves the per-user application directory. xdgVar is honored
// on Linux only; elsewhere the home-relative fallback is used, except on
// macOS where everything lives under Application Support. Returns "" when
// the home directory is unknown.
func appDir(xdgVar string, fallback ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case "linux":
		if xdg := os.Getenv(xdgVar); xdg != "" {
			return filepath.Join(xdg, appName)
		}
	}

	return filepath.Join(append(append([]string{home}, fallback...), appName)...)
}

// DefaultConfigPath returns the full path to the default config file.
func DefaultConfigPath() string {
	return joinIfSet(DefaultConfigDir(), configFileName)
}

// DefaultHistoryPath returns the default location of the run history database.
func DefaultHistoryPath() string {
	return joinIfSet(DefaultDataDir(), defaultHistoryFileName)
}

func joinIfSet(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
