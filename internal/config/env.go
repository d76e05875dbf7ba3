package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "ALIPAN_SAVE_CONFIG"
	EnvAccessToken = "ALIPAN_SAVE_ACCESS_TOKEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // ALIPAN_SAVE_CONFIG: override config file path
	AccessToken string // ALIPAN_SAVE_ACCESS_TOKEN: keeps the token out of the file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		AccessToken: os.Getenv(EnvAccessToken),
	}
}
