// Package auth mints and verifies HMAC-signed bearer tokens.
package auth

import (
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the registered claims of a bearer token. Subject holds the
// decimal user id.
type Claims struct {
	jwt.RegisteredClaims
}

// SigningMethod resolves an HMAC algorithm name (HS256, HS384, HS512).
// Any other algorithm is refused.
func SigningMethod(name string) (*jwt.SigningMethodHMAC, error) {
	switch name {
	case jwt.SigningMethodHS256.Alg():
		return jwt.SigningMethodHS256, nil
	case jwt.SigningMethodHS384.Alg():
		return jwt.SigningMethodHS384, nil
	case jwt.SigningMethodHS512.Alg():
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing method %q", name)
	}
}

// GenerateToken signs a token for userID issued at issuedAt and valid for
// validityDuration. It returns the token and its expiry.
func GenerateToken(userID int64, secretKey []byte, method jwt.SigningMethod, issuedAt time.Time, validityDuration time.Duration) (string, time.Time, error) {
	expiresAt := issuedAt.Add(validityDuration)

	token := jwt.NewWithClaims(method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt.Truncate(time.Second), nil
}

// Issuer mints tokens with fixed settings.
type Issuer struct {
	secretKey []byte
	method    jwt.SigningMethod
	validity  time.Duration
	now       func() time.Time
}

func NewIssuer(secretKey []byte, method jwt.SigningMethod, validity time.Duration) *Issuer {
	return &Issuer{secretKey: secretKey, method: method, validity: validity, now: time.Now}
}

// Issue returns a signed token for userID and its expiry.
func (i *Issuer) Issue(userID int64) (string, time.Time, error) {
	return GenerateToken(userID, i.secretKey, i.method, i.now(), i.validity)
}
