package config

import "time"

const (
	DefaultSessionStorageKey = "mm-auth"
	DefaultRefreshMaxRetries = 4
	DefaultRefreshBaseDelay  = 250 * time.Millisecond
)

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionStorageKey returns the credential slot key.
func (Session) GetSessionStorageKey() string {
	return GetEnv("SESSION_STORAGE_KEY", DefaultSessionStorageKey)
}

// GetRefreshMaxRetries is the number of retries after the first refresh attempt.
func (Session) GetRefreshMaxRetries() int {
	retries := GetEnvInt("REFRESH_MAX_RETRIES", DefaultRefreshMaxRetries)
	if retries < 0 {
		return 0
	}
	return retries
}

// GetRefreshBaseDelay returns the first refresh retry delay.
func (Session) GetRefreshBaseDelay() time.Duration {
	return GetEnvDuration("REFRESH_BASE_DELAY", DefaultRefreshBaseDelay)
}
