package config

import (
	"fmt"
	"os"
	"time"
)

const (
	portEnvVar        = "PORT"
	appNameVar        = "APP_NAME"
	folderEnvVar      = "FOLDER"
	tokenStoreVar     = "TOKEN_STORE"
	defaultLandingVar = "DEFAULT_LANDING_URL"
)

// TokenStoreSQLite selects the SQLite refresh token repo.
const TokenStoreSQLite = "sqlite"

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetPort() string {
	port := GetEnv(portEnvVar, "3000")
	if port != "" && port[0] != ':' {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "UTM App")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetTokenStore returns "memory" or "sqlite".
func (EnvVars) GetTokenStore() string {
	return GetEnv(tokenStoreVar, "memory")
}

// GetDefaultLandingURL is the attribution source used when a session arrives
// without any utm_* query parameters.
func (EnvVars) GetDefaultLandingURL() string {
	return GetEnv(defaultLandingVar, "")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDuration parses a Go duration from envVar, falling back to defaultValue
// when the variable is unset or malformed.
func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
