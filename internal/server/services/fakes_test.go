package services

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/cryptox"
	"github.com/dmitrijs2005/keyforge/internal/dbx"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/apikeys"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/users"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("sql expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

type memUsers struct {
	mu     sync.Mutex
	users  map[int64]*models.User
	nextID int64
	getErr error
}

func newMemUsers(us ...*models.User) *memUsers {
	m := &memUsers{users: map[int64]*models.User{}}
	for _, u := range us {
		m.users[u.ID] = u
		m.nextID = max(m.nextID, u.ID)
	}
	return m
}

func (m *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.UserName == u.UserName || existing.Email == u.Email {
			return nil, fmt.Errorf("%w: users_username_key", common.ErrorConflict)
		}
	}
	m.nextID++
	c := *u
	c.ID = m.nextID
	c.CreatedAt = time.Now()
	m.users[c.ID] = &c
	return &c, nil
}

func (m *memUsers) GetByID(_ context.Context, id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (m *memUsers) GetByUserName(_ context.Context, name string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, u := range m.users {
		if u.UserName == name {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

type memAPIKeys struct {
	mu        sync.Mutex
	keys      map[int64]*models.APIKey
	nextID    int64
	saves     int
	getErr    error
	saveErr   error
	deleteErr error
	listErr   error
}

func newMemAPIKeys() *memAPIKeys {
	return &memAPIKeys{keys: map[int64]*models.APIKey{}}
}

func (m *memAPIKeys) Get(_ context.Context, id int64) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	k, ok := m.keys[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *k
	return &c, nil
}

func (m *memAPIKeys) List(ctx context.Context) ([]*models.APIKey, error) {
	return m.list(func(*models.APIKey) bool { return true })
}

func (m *memAPIKeys) ListByUser(ctx context.Context, userID int64) ([]*models.APIKey, error) {
	return m.list(func(k *models.APIKey) bool { return k.UserID == userID })
}

func (m *memAPIKeys) list(keep func(*models.APIKey) bool) ([]*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := []*models.APIKey{}
	for _, k := range m.keys {
		if keep(k) {
			c := *k
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.APIKey) int { return int(a.ID - b.ID) })
	return out, nil
}

func (m *memAPIKeys) Save(_ context.Context, k *models.APIKey) (*models.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.saves++
	c := *k
	if c.ID == 0 {
		m.nextID++
		c.ID = m.nextID
		c.CreatedAt = time.Now()
	}
	m.keys[c.ID] = &c
	out := c
	return &out, nil
}

func (m *memAPIKeys) Delete(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	_, ok := m.keys[id]
	delete(m.keys, id)
	return ok, nil
}

type fakeRepoManager struct {
	users *memUsers
	keys  *memAPIKeys
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *fakeRepoManager) APIKeys(dbx.DBTX) apikeys.Repository          { return m.keys }

// countingHasher records how many verifications ran.
type countingHasher struct {
	cryptox.Hasher
	mu       sync.Mutex
	verifies int
	hashErr  error
}

func newCountingHasher() *countingHasher {
	return &countingHasher{Hasher: &cryptox.BcryptHasher{Cost: bcrypt.MinCost}}
}

func (h *countingHasher) Hash(raw string) (string, error) {
	if h.hashErr != nil {
		return "", h.hashErr
	}
	return h.Hasher.Hash(raw)
}

func (h *countingHasher) Verify(raw, hash string) bool {
	h.mu.Lock()
	h.verifies++
	h.mu.Unlock()
	return h.Hasher.Verify(raw, hash)
}

func (h *countingHasher) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.verifies
}

// sequenceKeys returns K1, K2, ...
type sequenceKeys struct {
	mu sync.Mutex
	n  int
}

func (g *sequenceKeys) NewRawKey() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("K%d", g.n)
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }
