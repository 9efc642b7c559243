package cryptox

import (
	"encoding/base64"

	"github.com/dmitrijs2005/keyforge/internal/common"
)

// KeyGenerator produces raw API key material.
type KeyGenerator interface {
	NewRawKey() string
}

// RandomKeyGenerator draws keys from crypto/rand.
type RandomKeyGenerator struct{}

func (RandomKeyGenerator) NewRawKey() string { return NewRawKey() }

// NewRawKey returns 32 random bytes encoded with unpadded base64url, giving a
// 43 character URL-safe string. It panics if crypto/rand fails.
func NewRawKey() string {
	return base64.RawURLEncoding.EncodeToString(common.GenerateRandByteArray(common.RawKeySize))
}
