package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	appNameVar   = "APP_NAME"
	envVar       = "ENV"
	apiURLVar    = "API_URL"
	folderEnvVar = "FOLDER"
	logLevelVar  = "LOG_LEVEL"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAppName returns APP_NAME.
func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Fit Sync")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, "DEV")
}

// GetAPIURL returns the backend base URL without a trailing slash or "/api" suffix;
// the gateway appends the versioned "/api/v1/..." routes itself.
func (EnvVars) GetAPIURL() string {
	url := strings.TrimRight(GetEnv(apiURLVar, "http://localhost"), "/")
	return strings.TrimSuffix(url, "/api")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

// GetDatabasePath returns the sqlite file inside the data folder.
func (e EnvVars) GetDatabasePath() string {
	return filepath.Join(e.GetDataFolder(), "fitsync.db")
}

// GetLogLevel returns LOG_LEVEL, e.g. debug or info.
func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// LoadDotEnv loads variables from the given .env files (default ".env") without
// overriding variables already present in the environment. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// GetEnv returns the value of envVar or defaultValue when unset.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvInt is GetEnv for integers. Unparsable values fall back to defaultValue.
func GetEnvInt(envVar string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}

// GetEnvDuration is GetEnv for durations such as 250ms.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return value
}
