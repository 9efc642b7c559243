// Package services contains server-side business logic: user registration
// and login, and the API key lifecycle.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/cryptox"
	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/repomanager"
)

// maxPasswordBytes is the bcrypt input limit.
const maxPasswordBytes = 72

// TokenIssuer mints bearer tokens for a user id.
type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
}

// LoginResult is a freshly minted bearer token.
type LoginResult struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      cryptox.Hasher
	issuer      TokenIssuer
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher cryptox.Hasher,
	issuer TokenIssuer, logger logging.Logger) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		issuer:      issuer,
		logger:      logger.With("module", "users"),
	}
}

// Register creates a user. The password is hashed before it reaches the
// store. A taken username or email yields common.ErrorConflict.
func (s *UserService) Register(ctx context.Context, username, email, password string) (*models.User, error) {
	switch {
	case strings.TrimSpace(username) == "":
		return nil, fmt.Errorf("%w: username", common.ErrInvalidField)
	case !strings.Contains(email, "@"):
		return nil, fmt.Errorf("%w: email", common.ErrInvalidField)
	case password == "":
		return nil, fmt.Errorf("%w: password", common.ErrInvalidField)
	case len(password) > maxPasswordBytes:
		return nil, fmt.Errorf("%w: password longer than %d bytes", common.ErrInvalidField, maxPasswordBytes)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	user := &models.User{
		UserName:     username,
		Email:        email,
		PasswordHash: hash,
	}

	user, err = s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "username", user.UserName)
	return user, nil
}

// Login checks the password of userName and mints a bearer token. Unknown
// users and wrong passwords both yield common.ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, userName, password string) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByUserName(ctx, userName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Verify(password, s.dummy())
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("%w: %w", common.ErrorInternal, err)
	}

	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, common.ErrorUnauthorized
	}

	token, expiresAt, err := s.issuer.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %w", common.ErrorInternal, err)
	}

	s.logger.Info(ctx, "user logged in", "user_id", user.ID)
	return &LoginResult{UserID: user.ID, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(string(common.GenerateRandByteArray(16)))
		if err != nil {
			s.logger.Error(context.Background(), "dummy hash failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}
