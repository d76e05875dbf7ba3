package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Errors returned for unusable config documents.
var (
	ErrInvalidDocument = errors.New("config: invalid config document")
	ErrMissingFields   = errors.New("config: missing required fields")
)

// Required field names, in the order they are reported.
const (
	FieldAccessToken = "access_token"
	FieldDriveID     = "drive_id"
	FieldShareLink   = "share_link"
)

const tomlGuidance = "strings must be double-quoted and keys written as key = value"

const jsonGuidance = "wrap every key and string in double quotes and remove comments and trailing commas"

// MissingFieldsError lists the required fields that have no value.
// errors.Is(err, ErrMissingFields) matches it.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingFields, strings.Join(e.Fields, ", "))
}

func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// Load reads and parses a config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	cfg := DefaultConfig()

	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = decodeJSON(data, cfg)
	} else {
		err = decodeTOML(data, cfg)
	}

	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a config file if it exists, otherwise returns a
// Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

func decodeTOML(data []byte, cfg *Config) error {
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		var pe toml.ParseError
		if errors.As(err, &pe) {
			return fmt.Errorf("%w (line %d): %s; %s", ErrInvalidDocument, pe.Position.Line, pe.Message, tomlGuidance)
		}

		return fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}

	return checkUnknownKeys(&md)
}

func decodeJSON(data []byte, cfg *Config) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return jsonDocumentError(data, err)
	}

	if err := checkUnknownJSONKeys(raw); err != nil {
		return err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return jsonDocumentError(data, err)
	}

	// Secrets documents use 0 for "not set".
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}

	return nil
}

func jsonDocumentError(data []byte, err error) error {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)

	switch {
	case errors.As(err, &syntaxErr):
		line, col := position(data, syntaxErr.Offset)
		return fmt.Errorf("%w (line %d, column %d): %v; %s", ErrInvalidDocument, line, col, err, jsonGuidance)
	case errors.As(err, &typeErr):
		return fmt.Errorf("%w: field %q: expected %s, got %s", ErrInvalidDocument, typeErr.Field, typeErr.Type, typeErr.Value)
	default:
		return fmt.Errorf("%w: %v; %s", ErrInvalidDocument, err, jsonGuidance)
	}
}

// position converts a byte offset into a 1-based line and column.
func position(data []byte, offset int64) (line, col int) {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}

	before := data[:offset]
	line = bytes.Count(before, []byte("\n")) + 1
	col = int(offset) - (bytes.LastIndexByte(before, '\n') + 1)

	return line, col
}

// ConfigPath returns the config file path selected by the CLI flag, the
// environment, or the default, in that order. explicit is false only for
// the default, which may be absent.
func ConfigPath(env EnvOverrides, cli CLIOverrides) (path string, explicit bool) {
	switch {
	case cli.ConfigPath != "":
		return cli.ConfigPath, true
	case env.ConfigPath != "":
		return env.ConfigPath, true
	default:
		return DefaultConfigPath(), false
	}
}

// DefaultLogPath returns the log file used when log_file is unset: a file
// next to the config file. Returns "" when cfgPath is empty.
func DefaultLogPath(cfgPath string) string {
	if cfgPath == "" {
		return ""
	}

	return filepath.Join(filepath.Dir(cfgPath), defaultLogFileName)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// Required fields are not checked here; see Resolved.Require.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath, explicit := ConfigPath(env, cli)

	// 2. Load config file. Only the default path may be absent.
	var (
		cfg *Config
		err error
	)

	if explicit {
		cfg, err = Load(cfgPath)
	} else {
		cfg, err = LoadOrDefault(cfgPath)
	}

	if err != nil {
		return nil, err
	}

	resolved, err := resolveConfig(cfg, cfgPath)
	if err != nil {
		return nil, err
	}

	// 3. Apply env overrides
	if env.AccessToken != "" {
		resolved.AccessToken = env.AccessToken
	}

	// 4. Apply CLI overrides
	if cli.ShareLink != "" {
		resolved.ShareLink = cli.ShareLink
	}

	if cli.SharePwd != nil {
		resolved.SharePwd = *cli.SharePwd
	}

	if cli.TargetName != nil {
		resolved.TargetFolderName = *cli.TargetName
	}

	if cli.TargetParent != nil {
		resolved.TargetParentFileID = *cli.TargetParent
	}

	if cli.BatchSize != nil {
		resolved.BatchSize = *cli.BatchSize
	}

	// 5. Validate the final result
	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

func resolveConfig(cfg *Config, cfgPath string) (*Resolved, error) {
	timeout, err := time.ParseDuration(cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("request_timeout: %w", err)
	}

	r := &Resolved{
		ConfigPath:         cfgPath,
		AccessToken:        strings.TrimSpace(cfg.AccessToken),
		DriveID:            strings.TrimSpace(cfg.DriveID),
		ShareLink:          strings.TrimSpace(cfg.ShareLink),
		SharePwd:           cfg.SharePwd,
		APIBaseURL:         strings.TrimRight(strings.TrimSpace(cfg.APIBaseURL), "/"),
		TargetParentFileID: strings.TrimSpace(cfg.TargetParentFileID),
		TargetFolderName:   strings.TrimSpace(cfg.TargetFolderName),
		BatchSize:          cfg.BatchSize,
		LogLevel:           cfg.LogLevel,
		LogFile:            cfg.LogFile,
		LogFormat:          cfg.LogFormat,
		RequestTimeout:     timeout,
		HistoryDB:          cfg.HistoryDB,
	}

	if r.TargetParentFileID == "" {
		r.TargetParentFileID = defaultTargetParentFileID
	}

	if r.LogFile == "" {
		r.LogFile = DefaultLogPath(cfgPath)
	}

	if r.HistoryDB == "" {
		r.HistoryDB = DefaultHistoryPath()
	}

	return r, nil
}

// Require reports the named fields that are empty as a
// *MissingFieldsError. Unknown names are ignored.
func (r *Resolved) Require(fields ...string) error {
	var missing []string

	for _, f := range fields {
		var v string

		switch f {
		case FieldAccessToken:
			v = r.AccessToken
		case FieldDriveID:
			v = r.DriveID
		case FieldShareLink:
			v = r.ShareLink
		default:
			continue
		}

		if strings.TrimSpace(v) == "" {
			missing = append(missing, f)
		}
	}

	if len(missing) > 0 {
		return &MissingFieldsError{Fields: missing}
	}

	return nil
}
