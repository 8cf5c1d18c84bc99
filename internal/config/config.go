package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	apperrors "github.com/ranaawaisahmad/utmApp/internal/errors"
)

type Config interface {
	EnvConfig
	CRMConfig
	PollConfig
	SessionConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetTokenStore() string
	GetDefaultLandingURL() string
}

type mainConfig struct {
	EnvVars
	CRM
	Poll
	Session
}

// New builds the config, loading any .env files first. A missing .env file is
// not an error.
func New(envFiles ...string) Config {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	_ = godotenv.Load(envFiles...)
	return mainConfig{}
}

// Validate checks that the CRM credentials are present.
func Validate(c CRMConfig) error {
	var missing []string
	if c.GetClientID() == "" {
		missing = append(missing, clientIDVar)
	}
	if c.GetClientSecret() == "" {
		missing = append(missing, clientSecretVar)
	}
	if c.GetRedirectURI() == "" {
		missing = append(missing, redirectURIVar)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", apperrors.ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}
