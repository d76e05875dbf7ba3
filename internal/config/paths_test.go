package config

import (
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigDir_NonEmpty(t *testing.T) {
	dir := DefaultConfigDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultDataDir_NonEmpty(t *testing.T) {
	dir := DefaultDataDir()
	assert.NotEmpty(t, dir)
	assert.True(t, strings.Contains(dir, appName))
}

func TestDefaultConfigPath_EndsWithConfigToml(t *testing.T) {
	path := DefaultConfigPath()
	assert.NotEmpty(t, path)
	assert.True(t, strings.HasSuffix(path, "config.toml"))
}

func TestDefaultHistoryPath(t *testing.T) {
	path := DefaultHistoryPath()
	assert.Equal(t, "history.db", filepath.Base(path))
	assert.Contains(t, path, appName)
}

func TestDefaultConfigDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_CONFIG_HOME", "/custom/config")
	assert.Equal(t, "/custom/config/alipan-save", DefaultConfigDir())
}

func TestDefaultDataDir_XDG(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only test")
	}

	t.Setenv("XDG_DATA_HOME", "/custom/data")
	assert.Equal(t, "/custom/data/alipan-save", DefaultDataDir())
}

func TestAppDir_NoXDGUsesHomeFallback(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("Linux-only test")
	}

	t.Setenv("HOME", "/home/testuser")
	t.Setenv("XDG_DATA_HOME", "")
	assert.Equal(t, "/home/testuser/.local/share/alipan-save", appDir("XDG_DATA_HOME", ".local", "share"))
}

func TestJoinIfSet(t *testing.T) {
	assert.Empty(t, joinIfSet("", "config.toml"))
	assert.Equal(t, filepath.Join("dir", "config.toml"), joinIfSet("dir", "config.toml"))
}

func TestDefaultConfigDir_MacOS(t *testing.T) {
	if runtime.GOOS != "darwin" {
		t.Skip("macOS-only test")
	}

	assert.Contains(t, DefaultConfigDir(), "Library/Application Support")
}
