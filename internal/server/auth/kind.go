package auth

import (
	"errors"

	"github.com/dmitrijs2005/keyforge/internal/common"
)

// Kind classifies why a credential was rejected.
type Kind int

const (
	KindNone Kind = iota
	KindMissingCredential
	KindMalformed
	KindInvalidSignature
	KindExpired
	KindUnknownSubject
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindMissingCredential:
		return "missing_credential"
	case KindMalformed:
		return "malformed"
	case KindInvalidSignature:
		return "invalid_signature"
	case KindExpired:
		return "expired"
	case KindUnknownSubject:
		return "unknown_subject"
	default:
		return "internal"
	}
}

// SecurityEvent reports whether the rejection suggests tampering rather
// than a client mistake.
func (k Kind) SecurityEvent() bool {
	return k == KindInvalidSignature
}

// KindOf maps a verification error to its Kind. A nil error is KindNone;
// anything unrecognised is KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, common.ErrMissingCredential):
		return KindMissingCredential
	case errors.Is(err, common.ErrTokenMalformed):
		return KindMalformed
	case errors.Is(err, common.ErrTokenSignatureInvalid):
		return KindInvalidSignature
	case errors.Is(err, common.ErrTokenExpired):
		return KindExpired
	case errors.Is(err, common.ErrUnknownSubject):
		return KindUnknownSubject
	default:
		return KindInternal
	}
}
