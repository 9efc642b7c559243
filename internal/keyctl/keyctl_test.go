package keyctl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUsers struct {
	registered []string
	password   string
	err        error
}

func (f *fakeUsers) Register(_ context.Context, username, email, password string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.registered = append(f.registered, username+"|"+email)
	f.password = password
	return &models.User{ID: 42, UserName: username, Email: email}, nil
}

func (f *fakeUsers) Login(_ context.Context, userName, password string) (*services.LoginResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.password = password
	return &services.LoginResult{
		UserID:    42,
		Token:     "jwt-for-" + userName,
		ExpiresAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}, nil
}

type fakeKeys struct {
	revoked map[int64]bool
	name    string
	err     error
}

func (f *fakeKeys) IssueNamed(_ context.Context, userID int64, name string) (string, *models.APIKey, error) {
	if f.err != nil {
		return "", nil, f.err
	}
	f.name = name
	return "K1", &models.APIKey{ID: 7, UserID: userID, Name: name}, nil
}

func (f *fakeKeys) Revoke(_ context.Context, keyID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.revoked[keyID] {
		return false, nil
	}
	f.revoked[keyID] = true
	return true, nil
}

type harness struct {
	cli      *CLI
	users    *fakeUsers
	keys     *fakeKeys
	out      *bytes.Buffer
	migrated int
}

func newHarness(t *testing.T, stdin string) *harness {
	t.Helper()
	stubPassword(t, "correct horse", nil)

	h := &harness{
		users: &fakeUsers{},
		keys:  &fakeKeys{revoked: map[int64]bool{}},
		out:   &bytes.Buffer{},
	}
	migrate := func(context.Context) error {
		h.migrated++
		return nil
	}
	h.cli = New(h.users, h.keys, migrate, strings.NewReader(stdin), h.out)
	return h
}

func TestRun_NoArgs(t *testing.T) {
	h := newHarness(t, "")
	err := h.cli.Run(context.Background(), nil)
	require.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, h.out.String(), "usage: keyctl")
}

func TestRun_UnknownCommand(t *testing.T) {
	h := newHarness(t, "")
	err := h.cli.Run(context.Background(), []string{"frobnicate"})
	require.ErrorIs(t, err, ErrUsage)
	assert.Contains(t, err.Error(), "frobnicate")
}

func TestRun_Help(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.cli.Run(context.Background(), []string{"help"}))
	assert.Contains(t, h.out.String(), "user-add")
}

func TestUserAdd_Flags(t *testing.T) {
	h := newHarness(t, "")
	err := h.cli.Run(context.Background(), []string{"user-add", "-user", "alice", "-email=alice@example.com", "-d", "postgres://x"})
	require.NoError(t, err)

	assert.Equal(t, []string{"alice|alice@example.com"}, h.users.registered)
	assert.Equal(t, "correct horse", h.users.password)
	assert.Contains(t, h.out.String(), "user alice created with id 42")
	assert.NotContains(t, h.out.String(), "correct horse")
}

func TestUserAdd_Prompts(t *testing.T) {
	h := newHarness(t, "bob\nbob@example.com\n")
	require.NoError(t, h.cli.Run(context.Background(), []string{"user-add"}))

	assert.Equal(t, []string{"bob|bob@example.com"}, h.users.registered)
	assert.Contains(t, h.out.String(), "Enter user name")
	assert.Contains(t, h.out.String(), "Enter email")
}

func TestUserAdd_Conflict(t *testing.T) {
	h := newHarness(t, "")
	h.users.err = fmt.Errorf("%w: users_username_key", common.ErrorConflict)

	err := h.cli.Run(context.Background(), []string{"user-add", "-user", "alice", "-email", "a@b"})
	require.ErrorIs(t, err, common.ErrorConflict)
}

func TestUserAdd_PasswordReadFails(t *testing.T) {
	h := newHarness(t, "")
	stubPassword(t, "", errors.New("not a terminal"))

	err := h.cli.Run(context.Background(), []string{"user-add", "-user", "alice", "-email", "a@b"})
	require.Error(t, err)
	assert.Empty(t, h.users.registered)
}

func TestToken(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.cli.Run(context.Background(), []string{"token", "-user", "alice"}))

	assert.Contains(t, h.out.String(), "jwt-for-alice\n")
	assert.Contains(t, h.out.String(), "expires at 2026-03-01T10:00:00Z")
}

func TestToken_Unauthorized(t *testing.T) {
	h := newHarness(t, "")
	h.users.err = common.ErrorUnauthorized

	err := h.cli.Run(context.Background(), []string{"token", "-user", "alice"})
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestIssue(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.cli.Run(context.Background(), []string{"issue", "-user-id", "42", "-name", " ci "}))

	assert.Equal(t, "ci", h.keys.name)
	assert.Contains(t, h.out.String(), "api key 7 issued for user 42")
	assert.Contains(t, h.out.String(), "K1\n")
}

func TestIssue_Errors(t *testing.T) {
	h := newHarness(t, "")
	require.ErrorIs(t, h.cli.Run(context.Background(), []string{"issue"}), ErrUsage)
	require.ErrorIs(t, h.cli.Run(context.Background(), []string{"issue", "-user-id", "abc"}), ErrUsage)

	h.keys.err = fmt.Errorf("error issuing api key: %w", common.ErrorNotFound)
	require.ErrorIs(t, h.cli.Run(context.Background(), []string{"issue", "-user-id", "99"}), common.ErrorNotFound)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.cli.Run(context.Background(), []string{"revoke", "-id", "7"}))
	require.NoError(t, h.cli.Run(context.Background(), []string{"revoke", "-id", "7"}))

	assert.Contains(t, h.out.String(), "api key 7 revoked")
	assert.Contains(t, h.out.String(), "api key 7 not found")

	require.ErrorIs(t, h.cli.Run(context.Background(), []string{"revoke"}), ErrUsage)
}

func TestMigrate(t *testing.T) {
	h := newHarness(t, "")
	require.NoError(t, h.cli.Run(context.Background(), []string{"migrate"}))
	assert.Equal(t, 1, h.migrated)

	h.cli.migrate = func(context.Context) error { return errors.New("dirty") }
	require.Error(t, h.cli.Run(context.Background(), []string{"migrate"}))
}
