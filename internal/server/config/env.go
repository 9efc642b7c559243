package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix is prepended to every variable name, e.g. KEYFORGE_DATABASE_DSN.
const EnvPrefix = "KEYFORGE"

// EnvConfig lists the environment variables read by parseEnv. Unset
// variables leave the current value in place.
type EnvConfig struct {
	EndpointAddrHTTP            string        `envconfig:"HTTP_ADDR"`
	DatabaseDSN                 string        `envconfig:"DATABASE_DSN"`
	SecretKey                   string        `envconfig:"SECRET_KEY"`
	SigningAlgorithm            string        `envconfig:"SIGNING_ALGORITHM"`
	AccessTokenValidityDuration time.Duration `envconfig:"ACCESS_TOKEN_VALIDITY"`
	HashAlgorithm               string        `envconfig:"HASH_ALGORITHM"`
	BcryptCost                  int           `envconfig:"BCRYPT_COST"`
	LogLevel                    string        `envconfig:"LOG_LEVEL"`
	ShutdownTimeout             time.Duration `envconfig:"SHUTDOWN_TIMEOUT"`
}

// parseEnv overlays KEYFORGE_* environment variables onto config.
// A variable that cannot be parsed panics, like the other sources.
func parseEnv(config *Config) {
	e := EnvConfig{
		EndpointAddrHTTP:            config.EndpointAddrHTTP,
		DatabaseDSN:                 config.DatabaseDSN,
		SecretKey:                   config.SecretKey,
		SigningAlgorithm:            config.SigningAlgorithm,
		AccessTokenValidityDuration: config.AccessTokenValidityDuration,
		HashAlgorithm:               config.HashAlgorithm,
		BcryptCost:                  config.BcryptCost,
		LogLevel:                    config.LogLevel,
		ShutdownTimeout:             config.ShutdownTimeout,
	}

	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		panic(err)
	}

	config.EndpointAddrHTTP = e.EndpointAddrHTTP
	config.DatabaseDSN = e.DatabaseDSN
	config.SecretKey = e.SecretKey
	config.SigningAlgorithm = e.SigningAlgorithm
	config.AccessTokenValidityDuration = e.AccessTokenValidityDuration
	config.HashAlgorithm = e.HashAlgorithm
	config.BcryptCost = e.BcryptCost
	config.LogLevel = e.LogLevel
	config.ShutdownTimeout = e.ShutdownTimeout
}
