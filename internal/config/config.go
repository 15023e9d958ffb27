package config

import "time"

type Config interface {
	EnvConfig
	SessionConfig
	SyncConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetAPIURL() string
	GetDataFolder() string
	GetDatabasePath() string
	GetLogLevel() string
}

type SessionConfig interface {
	GetSessionStorageKey() string
	GetRefreshMaxRetries() int
	GetRefreshBaseDelay() time.Duration
}

type SyncConfig interface {
	GetOutboxMaxEntries() int
	GetConnectivityProbeURL() string
	GetConnectivityProbeInterval() time.Duration
}

type mainConfig struct {
	EnvVars
	Session
	Sync
}

// New returns the environment backed configuration.
func New() Config {
	return mainConfig{}
}
