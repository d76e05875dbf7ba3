// Package config implements configuration loading, validation, and
// platform-specific path resolution for alipan-save. It supports a
// four-layer override chain (defaults -> config file -> environment -> CLI
// flags). Config files are TOML; a file ending in .json is read as JSON so
// existing secrets documents keep working.
package config

import "time"

// Config is the top-level configuration structure parsed from a config file.
// Embedded sections are flat in the file: there are no [tables].
type Config struct {
	CredentialsConfig
	ShareConfig
	TargetConfig
	LoggingConfig
	NetworkConfig
	HistoryConfig
}

// CredentialsConfig identifies the account that receives the copy.
// The access token is taken from the web client's Authorization header.
type CredentialsConfig struct {
	AccessToken string `toml:"access_token" json:"access_token"`
	DriveID     string `toml:"drive_id" json:"drive_id"`
}

// ShareConfig names the share to copy from.
type ShareConfig struct {
	ShareLink string `toml:"share_link" json:"share_link"`
	SharePwd  string `toml:"share_pwd" json:"share_pwd"`
}

// TargetConfig controls where the copy lands. An empty TargetFolderName
// means the share's own name is used.
type TargetConfig struct {
	TargetParentFileID string `toml:"target_parent_file_id" json:"target_parent_file_id"`
	TargetFolderName   string `toml:"target_folder_name" json:"target_folder_name"`
	BatchSize          int    `toml:"batch_size" json:"batch_size"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFile   string `toml:"log_file" json:"log_file"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior. An empty APIBaseURL means
// the host is inferred from the share link.
type NetworkConfig struct {
	APIBaseURL     string `toml:"api_base_url" json:"api_base_url"`
	RequestTimeout string `toml:"request_timeout" json:"request_timeout"`
}

// HistoryConfig controls the run history database.
type HistoryConfig struct {
	HistoryDB string `toml:"history_db" json:"history_db"`
}

// Resolved is the final configuration after the override chain has been
// applied. Durations are parsed and paths are filled in.
type Resolved struct {
	ConfigPath string

	AccessToken        string
	DriveID            string
	ShareLink          string
	SharePwd           string
	APIBaseURL         string
	TargetParentFileID string
	TargetFolderName   string
	BatchSize          int

	LogLevel  string
	LogFile   string
	LogFormat string

	RequestTimeout time.Duration
	HistoryDB      string
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath   string  // --config flag (empty = use default)
	ShareLink    string  // positional argument
	SharePwd     *string // --password
	TargetName   *string // --target-name
	TargetParent *string // --target-parent
	BatchSize    *int    // --batch-size
}
