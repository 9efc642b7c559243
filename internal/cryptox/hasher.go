// Package cryptox holds the one-way hashing and random key primitives used
// to protect credentials at rest.
package cryptox

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Hasher turns raw secrets into self-describing, salted one-way hashes.
//
// Hash must embed a fresh random salt on every call, so hashing the same
// input twice yields different strings. Verify must never panic on
// malformed input; it reports false instead.
type Hasher interface {
	Hash(raw string) (string, error)
	Verify(raw, hash string) bool
}

const (
	AlgorithmBcrypt   = "bcrypt"
	AlgorithmArgon2id = "argon2id"
)

// NewHasher builds the hasher named by algorithm. Hashes produced by either
// supported algorithm remain verifiable regardless of which one is primary.
func NewHasher(algorithm string, bcryptCost int) (*MultiHasher, error) {
	b := &BcryptHasher{Cost: bcryptCost}
	a := DefaultArgon2Hasher()

	switch algorithm {
	case AlgorithmBcrypt, "":
		return &MultiHasher{primary: b, bcrypt: b, argon2: a}, nil
	case AlgorithmArgon2id:
		return &MultiHasher{primary: a, bcrypt: b, argon2: a}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// BcryptHasher hashes with golang.org/x/crypto/bcrypt.
type BcryptHasher struct {
	Cost int
}

func (h *BcryptHasher) Hash(raw string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(b), nil
}

func (h *BcryptHasher) Verify(raw, hash string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(raw)) == nil
}

// Argon2Hasher hashes with Argon2id and encodes the result in the PHC string
// format: $argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<key>.
type Argon2Hasher struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen int
}

// DefaultArgon2Hasher uses the parameters the server derives master keys with.
func DefaultArgon2Hasher() *Argon2Hasher {
	return &Argon2Hasher{Time: 1, Memory: 64 * 1024, Threads: 4, KeyLen: 32, SaltLen: 16}
}

const argon2Prefix = "$argon2id$"

func (h *Argon2Hasher) Hash(raw string) (string, error) {
	salt := common.GenerateRandByteArray(h.SaltLen)
	key := argon2.IDKey([]byte(raw), salt, h.Time, h.Memory, h.Threads, h.KeyLen)

	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Prefix, argon2.Version, h.Memory, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *Argon2Hasher) Verify(raw, hash string) bool {
	p, ok := parseArgon2(hash)
	if !ok {
		return false
	}
	candidate := argon2.IDKey([]byte(raw), p.salt, p.time, p.memory, p.threads, uint32(len(p.key)))
	return subtle.ConstantTimeCompare(candidate, p.key) == 1
}

type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// parseArgon2 rejects anything outside sane bounds so a corrupted row cannot
// turn a verification into an unbounded allocation.
func parseArgon2(hash string) (*argon2Params, bool) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, false
	}

	p := &argon2Params{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, false
	}
	if p.memory == 0 || p.memory > 1<<20 || p.time == 0 || p.time > 16 || p.threads == 0 {
		return nil, false
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil || len(p.salt) == 0 {
		return nil, false
	}
	if p.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(p.key) == 0 || len(p.key) > 128 {
		return nil, false
	}
	return p, true
}

// MultiHasher hashes with its primary algorithm and verifies any supported
// format, dispatching on the hash prefix.
type MultiHasher struct {
	primary Hasher
	bcrypt  *BcryptHasher
	argon2  *Argon2Hasher
}

func (m *MultiHasher) Hash(raw string) (string, error) {
	return m.primary.Hash(raw)
}

func (m *MultiHasher) Verify(raw, hash string) bool {
	switch {
	case strings.HasPrefix(hash, argon2Prefix):
		return m.argon2.Verify(raw, hash)
	case strings.HasPrefix(hash, "$2a$"), strings.HasPrefix(hash, "$2b$"), strings.HasPrefix(hash, "$2y$"):
		return m.bcrypt.Verify(raw, hash)
	default:
		return false
	}
}
