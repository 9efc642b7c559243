package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
)

var testSecret = []byte("test-secret")

type memLookup map[int64]*models.User

func (m memLookup) GetByID(_ context.Context, id int64) (*models.User, error) {
	u, ok := m[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// fakeKeys is an in-memory APIKeyManager handing out K1, K2, ... with ids
// starting at nextID+1.
type fakeKeys struct {
	mu      sync.Mutex
	keys    map[int64]*models.APIKey
	nextID  int64
	issued  int
	listErr error
}

func newFakeKeys(nextID int64) *fakeKeys {
	return &fakeKeys{keys: map[int64]*models.APIKey{}, nextID: nextID}
}

func (f *fakeKeys) IssueNamed(_ context.Context, userID int64, name string) (string, *models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(name) > models.MaxAPIKeyNameLength {
		return "", nil, fmt.Errorf("%w: name too long", common.ErrInvalidField)
	}
	f.nextID++
	f.issued++
	k := &models.APIKey{
		ID:        f.nextID,
		UserID:    userID,
		KeyHash:   "$2a$hash",
		Name:      name,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.keys[k.ID] = k
	return fmt.Sprintf("K%d", f.issued), k, nil
}

func (f *fakeKeys) List(context.Context) ([]models.APIKeyView, error) {
	return f.list(func(*models.APIKey) bool { return true })
}

func (f *fakeKeys) ListForUser(_ context.Context, userID int64) ([]models.APIKeyView, error) {
	return f.list(func(k *models.APIKey) bool { return k.UserID == userID })
}

func (f *fakeKeys) list(keep func(*models.APIKey) bool) ([]models.APIKeyView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]*models.APIKey, 0, len(f.keys))
	for id := int64(1); id <= f.nextID; id++ {
		if k, ok := f.keys[id]; ok && keep(k) {
			out = append(out, k)
		}
	}
	return models.ToViews(out), nil
}

func (f *fakeKeys) Get(_ context.Context, keyID int64) (models.APIKeyView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyID]
	if !ok {
		return models.APIKeyView{}, common.ErrorNotFound
	}
	return k.ToView(), nil
}

func (f *fakeKeys) UpdateOwned(_ context.Context, ownerID, keyID int64, patch services.APIKeyPatch) (*models.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyID]
	if !ok || k.UserID != ownerID {
		return nil, common.ErrorNotFound
	}
	for field, raw := range patch {
		if field != "name" {
			return nil, fmt.Errorf("%w: %s", common.ErrInvalidField, field)
		}
		var name string
		if err := json.Unmarshal(raw, &name); err != nil {
			return nil, fmt.Errorf("%w: name", common.ErrInvalidField)
		}
		k.Name = name
	}
	return k, nil
}

func (f *fakeKeys) RevokeOwned(_ context.Context, ownerID, keyID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k, ok := f.keys[keyID]
	if !ok || k.UserID != ownerID {
		return false, nil
	}
	delete(f.keys, keyID)
	return true, nil
}

type fakeAuthenticator struct {
	err error
}

func (f fakeAuthenticator) Login(_ context.Context, userName, _ string) (*services.LoginResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.LoginResult{
		UserID:    42,
		Token:     "tok-" + userName,
		ExpiresAt: time.Date(2026, 1, 1, 0, 15, 0, 0, time.UTC),
	}, nil
}

type fakePinger struct {
	err error
}

func (f fakePinger) PingContext(context.Context) error { return f.err }
