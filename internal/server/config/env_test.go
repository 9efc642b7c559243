package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	t.Run("set variables override", func(t *testing.T) {
		t.Setenv("KEYFORGE_HTTP_ADDR", ":9999")
		t.Setenv("KEYFORGE_ACCESS_TOKEN_VALIDITY", "2m")
		t.Setenv("KEYFORGE_BCRYPT_COST", "8")
		t.Setenv("KEYFORGE_HASH_ALGORITHM", "argon2id")

		var c Config
		c.LoadDefaults()
		parseEnv(&c)

		assert.Equal(t, ":9999", c.EndpointAddrHTTP)
		assert.Equal(t, 2*time.Minute, c.AccessTokenValidityDuration)
		assert.Equal(t, 8, c.BcryptCost)
		assert.Equal(t, "argon2id", c.HashAlgorithm)
		assert.Equal(t, "secretKey", c.SecretKey)
	})

	t.Run("unset variables keep values", func(t *testing.T) {
		c := Config{EndpointAddrHTTP: ":1", ShutdownTimeout: time.Second}
		parseEnv(&c)

		assert.Equal(t, ":1", c.EndpointAddrHTTP)
		assert.Equal(t, time.Second, c.ShutdownTimeout)
	})

	t.Run("bad value panics", func(t *testing.T) {
		t.Setenv("KEYFORGE_BCRYPT_COST", "lots")

		var c Config
		require.Panics(t, func() { parseEnv(&c) })
	})
}
