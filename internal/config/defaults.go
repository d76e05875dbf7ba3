package config

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultTargetParentFileID = "root"
	defaultBatchSize          = 500
	defaultLogLevel           = "info"
	defaultLogFormat          = "auto"
	defaultRequestTimeout     = "30s"
	defaultLogFileName        = "alipan-save.log"
	defaultHistoryFileName    = "history.db"
)

// DefaultConfig returns a Config populated with all default values.
// It is the starting point for decoding, so unset fields keep defaults.
func DefaultConfig() *Config {
	return &Config{
		TargetConfig: TargetConfig{
			TargetParentFileID: defaultTargetParentFileID,
			BatchSize:          defaultBatchSize,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		NetworkConfig: NetworkConfig{
			RequestTimeout: defaultRequestTimeout,
		},
	}
}
