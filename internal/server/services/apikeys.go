package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"unicode/utf8"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/cryptox"
	"github.com/dmitrijs2005/keyforge/internal/dbx"
	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/repomanager"
)

// APIKeyPatch maps field names to new JSON values for Update.
type APIKeyPatch map[string]json.RawMessage

// APIKeyService issues, validates, updates and revokes API keys. Raw keys
// are returned once by Issue and never stored.
type APIKeyService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      cryptox.Hasher
	keygen      cryptox.KeyGenerator
	logger      logging.Logger

	dummyOnce sync.Once
	dummyHash string
}

func NewAPIKeyService(db *sql.DB, m repomanager.RepositoryManager, hasher cryptox.Hasher,
	keygen cryptox.KeyGenerator, logger logging.Logger) *APIKeyService {
	return &APIKeyService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		keygen:      keygen,
		logger:      logger.With("module", "apikeys"),
	}
}

// Issue creates an unnamed key for userID. See IssueNamed.
func (s *APIKeyService) Issue(ctx context.Context, userID int64) (string, *models.APIKey, error) {
	return s.IssueNamed(ctx, userID, "")
}

// IssueNamed generates a raw key, stores its hash for userID and returns the
// raw key with the stored record. The raw key is only returned once the
// record is persisted.
func (s *APIKeyService) IssueNamed(ctx context.Context, userID int64, name string) (string, *models.APIKey, error) {
	if utf8.RuneCountInString(name) > models.MaxAPIKeyNameLength {
		return "", nil, fmt.Errorf("%w: name longer than %d characters", common.ErrInvalidField, models.MaxAPIKeyNameLength)
	}

	raw := s.keygen.NewRawKey()
	hash, err := s.hasher.Hash(raw)
	if err != nil {
		return "", nil, fmt.Errorf("%w: hash api key: %w", common.ErrorInternal, err)
	}

	var saved *models.APIKey
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).GetByID(ctx, userID); err != nil {
			return fmt.Errorf("user %d: %w", userID, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		key, err := s.repomanager.APIKeys(tx).Save(ctx, &models.APIKey{UserID: userID, Name: name, KeyHash: hash})
		saved = key
		return err
	})
	if err != nil {
		return "", nil, fmt.Errorf("error issuing api key: %w", err)
	}

	s.logger.Info(ctx, "api key issued", "key_id", saved.ID, "user_id", userID)
	return raw, saved, nil
}

// Validate reports whether rawCandidate matches the stored key keyID. An
// absent key costs one hash verification like a present one.
func (s *APIKeyService) Validate(ctx context.Context, keyID int64, rawCandidate string) bool {
	key, err := s.repomanager.APIKeys(s.db).Get(ctx, keyID)
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.logger.Error(ctx, "api key lookup failed", "key_id", keyID, "error", err)
		}
		s.hasher.Verify(rawCandidate, s.dummy())
		return false
	}
	return s.hasher.Verify(rawCandidate, key.KeyHash)
}

func (s *APIKeyService) dummy() string {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(s.keygen.NewRawKey())
		if err != nil {
			s.logger.Error(context.Background(), "dummy hash failed", "error", err)
			return
		}
		s.dummyHash = h
	})
	return s.dummyHash
}

// Update applies patch to key keyID. Only "name" may change.
func (s *APIKeyService) Update(ctx context.Context, keyID int64, patch APIKeyPatch) (*models.APIKey, error) {
	return s.update(ctx, keyID, patch, nil)
}

// UpdateOwned is Update restricted to keys owned by ownerID. Keys of other
// users are reported as not found.
func (s *APIKeyService) UpdateOwned(ctx context.Context, ownerID, keyID int64, patch APIKeyPatch) (*models.APIKey, error) {
	return s.update(ctx, keyID, patch, &ownerID)
}

func (s *APIKeyService) update(ctx context.Context, keyID int64, patch APIKeyPatch, ownerID *int64) (*models.APIKey, error) {
	var updated *models.APIKey

	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	err := dbx.WithTx(ctx, s.db, opts, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.APIKeys(tx)

		key, err := repo.Get(ctx, keyID)
		if err != nil {
			return err
		}
		if ownerID != nil && key.UserID != *ownerID {
			return common.ErrorNotFound
		}

		changed, err := applyPatch(key, patch)
		if err != nil {
			return err
		}
		if !changed {
			updated = key
			return nil
		}

		updated, err = repo.Save(ctx, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("error updating api key %d: %w", keyID, err)
	}

	return updated, nil
}

// applyPatch is the allow-list of mutable fields. Fields are visited in
// sorted order so the reported field is deterministic.
func applyPatch(key *models.APIKey, patch APIKeyPatch) (bool, error) {
	for _, field := range slices.Sorted(maps.Keys(patch)) {
		switch field {
		case "name":
			var v any
			if err := json.Unmarshal(patch[field], &v); err != nil {
				return false, fmt.Errorf("%w: name", common.ErrInvalidField)
			}
			name, ok := v.(string)
			if !ok {
				return false, fmt.Errorf("%w: name must be a string", common.ErrInvalidField)
			}
			if utf8.RuneCountInString(name) > models.MaxAPIKeyNameLength {
				return false, fmt.Errorf("%w: name longer than %d characters", common.ErrInvalidField, models.MaxAPIKeyNameLength)
			}
			key.Name = name
		default:
			return false, fmt.Errorf("%w: %s", common.ErrInvalidField, field)
		}
	}
	return len(patch) > 0, nil
}

// Revoke deletes key keyID. Revoking an absent key returns false and no error.
func (s *APIKeyService) Revoke(ctx context.Context, keyID int64) (bool, error) {
	deleted, err := s.repomanager.APIKeys(s.db).Delete(ctx, keyID)
	if err != nil {
		return false, fmt.Errorf("error revoking api key %d: %w", keyID, err)
	}
	if deleted {
		s.logger.Info(ctx, "api key revoked", "key_id", keyID)
	}
	return deleted, nil
}

// RevokeOwned is Revoke restricted to keys owned by ownerID.
func (s *APIKeyService) RevokeOwned(ctx context.Context, ownerID, keyID int64) (bool, error) {
	var deleted bool

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.APIKeys(tx)

		key, err := repo.Get(ctx, keyID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if key.UserID != ownerID {
			return nil
		}

		deleted, err = repo.Delete(ctx, keyID)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("error revoking api key %d: %w", keyID, err)
	}
	if deleted {
		s.logger.Info(ctx, "api key revoked", "key_id", keyID, "user_id", ownerID)
	}
	return deleted, nil
}

func (s *APIKeyService) List(ctx context.Context) ([]models.APIKeyView, error) {
	keys, err := s.repomanager.APIKeys(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing api keys: %w", err)
	}
	return models.ToViews(keys), nil
}

func (s *APIKeyService) ListForUser(ctx context.Context, userID int64) ([]models.APIKeyView, error) {
	keys, err := s.repomanager.APIKeys(s.db).ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error listing api keys of user %d: %w", userID, err)
	}
	return models.ToViews(keys), nil
}

func (s *APIKeyService) Get(ctx context.Context, keyID int64) (models.APIKeyView, error) {
	key, err := s.repomanager.APIKeys(s.db).Get(ctx, keyID)
	if err != nil {
		return models.APIKeyView{}, fmt.Errorf("error getting api key %d: %w", keyID, err)
	}
	return key.ToView(), nil
}
