package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
)

// UserLookup resolves a token subject to a stored user.
type UserLookup interface {
	GetByID(ctx context.Context, id int64) (*models.User, error)
}

// Principal is the verified identity behind a bearer token.
type Principal struct {
	UserID    int64
	UserName  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier checks bearer tokens: structure, signature, expiry, subject, in
// that order. Each failure maps to one sentinel in package common.
type Verifier struct {
	secretKey []byte
	method    jwt.SigningMethod
	users     UserLookup
	now       func() time.Time
}

func NewVerifier(secretKey []byte, method jwt.SigningMethod, users UserLookup) *Verifier {
	return &Verifier{secretKey: secretKey, method: method, users: users, now: time.Now}
}

// WithClock replaces the time source used for the expiry check.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func (v *Verifier) Verify(ctx context.Context, rawToken string) (*Principal, error) {
	if strings.TrimSpace(rawToken) == "" {
		return nil, fmt.Errorf("%w: empty token", common.ErrTokenMalformed)
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithoutClaimsValidation(),
		jwt.WithPaddingAllowed(),
	)
	_, err := parser.ParseWithClaims(rawToken, claims, func(t *jwt.Token) (any, error) {
		return v.secretKey, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	if claims.ExpiresAt == nil {
		return nil, fmt.Errorf("%w: no expiry", common.ErrTokenMalformed)
	}
	if !v.now().Before(claims.ExpiresAt.Time) {
		return nil, common.ErrTokenExpired
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return nil, fmt.Errorf("%w: bad subject", common.ErrTokenMalformed)
	}

	user, err := v.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrUnknownSubject
		}
		return nil, fmt.Errorf("%w: subject lookup: %w", common.ErrorInternal, err)
	}

	p := &Principal{
		UserID:    user.ID,
		UserName:  user.UserName,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}

// classifyParseError folds jwt parse errors into the token sentinels.
// The jwt error is not wrapped so only one sentinel matches.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", common.ErrTokenSignatureInvalid, err)
	default:
		return fmt.Errorf("%w: %v", common.ErrTokenMalformed, err)
	}
}
