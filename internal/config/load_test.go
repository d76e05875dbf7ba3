package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()

	return writeTestFile(t, "config.toml", content)
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, []byte(content), 0o600)
	require.NoError(t, err)

	return path
}

func ptr[T any](v T) *T { return &v }

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeTestConfig(t, `
access_token = "tok"
drive_id = "12345"
share_link = "https://www.alipan.com/s/abc"
share_pwd = "pw"
target_parent_file_id = "parent-1"
target_folder_name = "Saved"
batch_size = 100

log_level = "debug"
log_file = "/tmp/alipan-save.log"
log_format = "json"

api_base_url = "https://api.alipan.com"
request_timeout = "45s"

history_db = "/tmp/history.db"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, "12345", cfg.DriveID)
	assert.Equal(t, "https://www.alipan.com/s/abc", cfg.ShareLink)
	assert.Equal(t, "pw", cfg.SharePwd)
	assert.Equal(t, "parent-1", cfg.TargetParentFileID)
	assert.Equal(t, "Saved", cfg.TargetFolderName)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/alipan-save.log", cfg.LogFile)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "https://api.alipan.com", cfg.APIBaseURL)
	assert.Equal(t, "45s", cfg.RequestTimeout)
	assert.Equal(t, "/tmp/history.db", cfg.HistoryDB)
}

func TestLoad_DefaultsForUnsetFields(t *testing.T) {
	path := writeTestConfig(t, `access_token = "tok"`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "root", cfg.TargetParentFileID)
	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
	assert.Equal(t, "30s", cfg.RequestTimeout)
}

func TestLoad_JSONDocument(t *testing.T) {
	path := writeTestFile(t, "alipan_secrets.json", `{
  "access_token": "tok",
  "drive_id": "12345",
  "share_link": "https://www.alipan.com/s/abc/folder/f1",
  "batch_size": 200
}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, "12345", cfg.DriveID)
	assert.Equal(t, 200, cfg.BatchSize)
	assert.Equal(t, "root", cfg.TargetParentFileID)
}

func TestLoad_JSONUnquotedKeys(t *testing.T) {
	path := writeTestFile(t, "secrets.json", "{\n  access_token: \"tok\"\n}")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "line 2")
	assert.Contains(t, err.Error(), "double quotes")
}

func TestLoad_JSONTrailingComma(t *testing.T) {
	path := writeTestFile(t, "secrets.json", "{\n  \"access_token\": \"tok\",\n}")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "trailing commas")
}

func TestLoad_JSONZeroBatchSizeMeansDefault(t *testing.T) {
	path := writeTestFile(t, "secrets.json", `{"access_token": "tok", "batch_size": 0}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, defaultBatchSize, cfg.BatchSize)
}

func TestLoad_JSONWrongType(t *testing.T) {
	path := writeTestFile(t, "secrets.json", `{"batch_size": "many"}`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestLoad_TOMLSyntaxError(t *testing.T) {
	path := writeTestConfig(t, "access_token = \"tok\"\ndrive_id = 12abc\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoad_TOMLWrongType(t *testing.T) {
	path := writeTestConfig(t, `batch_size = "lots"`)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidDocument)
}

func TestLoad_ValidationErrorsAccumulate(t *testing.T) {
	path := writeTestConfig(t, `
batch_size = 0
log_level = "verbose"
log_format = "xml"
request_timeout = "fast"
api_base_url = "ftp://example.com"
`)

	_, err := Load(path)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "batch_size")
	assert.Contains(t, msg, "log_level")
	assert.Contains(t, msg, "log_format")
	assert.Contains(t, msg, "request_timeout")
	assert.Contains(t, msg, "api_base_url")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestLoadOrDefault_NoFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestResolve_OverrideChain(t *testing.T) {
	path := writeTestConfig(t, `
access_token = "file-token"
drive_id = "d1"
share_link = "https://www.alipan.com/s/file"
share_pwd = "filepw"
target_folder_name = "FromFile"
batch_size = 300
`)

	env := EnvOverrides{AccessToken: "env-token"}
	cli := CLIOverrides{
		ConfigPath:   path,
		ShareLink:    "https://www.alipan.com/s/cli",
		SharePwd:     ptr(""),
		TargetName:   ptr("FromCLI"),
		TargetParent: ptr("p9"),
		BatchSize:    ptr(50),
	}

	r, err := Resolve(env, cli)
	require.NoError(t, err)

	assert.Equal(t, path, r.ConfigPath)
	assert.Equal(t, "env-token", r.AccessToken)
	assert.Equal(t, "d1", r.DriveID)
	assert.Equal(t, "https://www.alipan.com/s/cli", r.ShareLink)
	assert.Empty(t, r.SharePwd, "explicit empty password overrides the file")
	assert.Equal(t, "FromCLI", r.TargetFolderName)
	assert.Equal(t, "p9", r.TargetParentFileID)
	assert.Equal(t, 50, r.BatchSize)
	assert.Equal(t, 30*time.Second, r.RequestTimeout)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "alipan-save.log"), r.LogFile)
	assert.NotEmpty(t, r.HistoryDB)
}

func TestResolve_NilCLIPointersKeepFileValues(t *testing.T) {
	path := writeTestConfig(t, `
share_pwd = "filepw"
target_folder_name = "FromFile"
`)

	r, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path})
	require.NoError(t, err)

	assert.Equal(t, "filepw", r.SharePwd)
	assert.Equal(t, "FromFile", r.TargetFolderName)
	assert.Equal(t, "root", r.TargetParentFileID)
	assert.Equal(t, 500, r.BatchSize)
}

func TestResolve_EnvConfigPath(t *testing.T) {
	path := writeTestConfig(t, `drive_id = "from-env-path"`)

	r, err := Resolve(EnvOverrides{ConfigPath: path}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, "from-env-path", r.DriveID)
}

func TestResolve_ExplicitPathMustExist(t *testing.T) {
	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: filepath.Join(t.TempDir(), "missing.toml")})
	require.Error(t, err)
}

func TestResolve_DefaultPathMayBeAbsent(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	r, err := Resolve(EnvOverrides{}, CLIOverrides{})
	require.NoError(t, err)
	assert.Equal(t, 500, r.BatchSize)
}

func TestResolve_InvalidCLIBatchSize(t *testing.T) {
	path := writeTestConfig(t, ``)

	_, err := Resolve(EnvOverrides{}, CLIOverrides{ConfigPath: path, BatchSize: ptr(0)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestResolved_Require(t *testing.T) {
	r := &Resolved{DriveID: "d1"}

	err := r.Require(FieldAccessToken, FieldDriveID, FieldShareLink)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingFields)

	var mfe *MissingFieldsError
	require.ErrorAs(t, err, &mfe)
	assert.Equal(t, []string{"access_token", "share_link"}, mfe.Fields)
	assert.Contains(t, err.Error(), "access_token, share_link")
}

func TestResolved_Require_AllPresent(t *testing.T) {
	r := &Resolved{AccessToken: "t", DriveID: "d", ShareLink: "l"}
	assert.NoError(t, r.Require(FieldAccessToken, FieldDriveID, FieldShareLink))
}

func TestResolved_Require_WhitespaceIsMissing(t *testing.T) {
	r := &Resolved{AccessToken: "  ", DriveID: "d", ShareLink: "l"}

	var mfe *MissingFieldsError
	require.ErrorAs(t, r.Require(FieldAccessToken, FieldDriveID, FieldShareLink), &mfe)
	assert.Equal(t, []string{"access_token"}, mfe.Fields)
}

func TestConfigPath_Precedence(t *testing.T) {
	path, explicit := ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{ConfigPath: "/cli.toml"})
	assert.Equal(t, "/cli.toml", path)
	assert.True(t, explicit)

	path, explicit = ConfigPath(EnvOverrides{ConfigPath: "/env.toml"}, CLIOverrides{})
	assert.Equal(t, "/env.toml", path)
	assert.True(t, explicit)

	path, explicit = ConfigPath(EnvOverrides{}, CLIOverrides{})
	assert.Equal(t, DefaultConfigPath(), path)
	assert.False(t, explicit)
}

func TestDefaultLogPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/etc/app", "alipan-save.log"), DefaultLogPath("/etc/app/config.toml"))
	assert.Empty(t, DefaultLogPath(""))
}
