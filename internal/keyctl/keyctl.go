// Package keyctl implements the operator CLI: creating users, minting
// bearer tokens, issuing and revoking API keys, and running migrations
// directly against the database.
package keyctl

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/flagx"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
)

// ErrUsage is returned for unknown commands or bad arguments.
var ErrUsage = errors.New("usage")

const usage = `usage: keyctl <command> [flags]

commands:
  user-add -user NAME -email EMAIL   create a user (password is prompted)
  token    -user NAME                mint a bearer token (password is prompted)
  issue    -user-id ID [-name NAME]  issue an API key
  revoke   -id ID                    revoke an API key
  migrate                            apply database migrations`

// UserOps is the part of services.UserService used by the CLI.
type UserOps interface {
	Register(ctx context.Context, username, email, password string) (*models.User, error)
	Login(ctx context.Context, userName, password string) (*services.LoginResult, error)
}

// KeyOps is the part of services.APIKeyService used by the CLI.
type KeyOps interface {
	IssueNamed(ctx context.Context, userID int64, name string) (string, *models.APIKey, error)
	Revoke(ctx context.Context, keyID int64) (bool, error)
}

// Migrator applies pending schema migrations.
type Migrator func(ctx context.Context) error

type CLI struct {
	users   UserOps
	keys    KeyOps
	migrate Migrator
	in      *bufio.Reader
	out     io.Writer
}

func New(users UserOps, keys KeyOps, migrate Migrator, in io.Reader, out io.Writer) *CLI {
	return &CLI{users: users, keys: keys, migrate: migrate, in: bufio.NewReader(in), out: out}
}

// Run executes the command named by args[0].
func (c *CLI) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(c.out, usage)
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "user-add":
		return c.userAdd(ctx, rest)
	case "token":
		return c.token(ctx, rest)
	case "issue":
		return c.issue(ctx, rest)
	case "revoke":
		return c.revoke(ctx, rest)
	case "migrate":
		if err := c.migrate(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "migrations applied")
		return nil
	case "help", "-h", "--help":
		fmt.Fprintln(c.out, usage)
		return nil
	default:
		fmt.Fprintln(c.out, usage)
		return fmt.Errorf("%w: unknown command %q", ErrUsage, cmd)
	}
}

// parse parses only the flags fs defines, so server config flags may be
// mixed in.
func parse(fs *flag.FlagSet, args []string) error {
	allowed := []string{}
	fs.VisitAll(func(f *flag.Flag) {
		allowed = append(allowed, "-"+f.Name, "--"+f.Name)
	})
	fs.SetOutput(io.Discard)
	if err := fs.Parse(flagx.FilterArgs(args, allowed)); err != nil {
		return fmt.Errorf("%w: %v", ErrUsage, err)
	}
	return nil
}

// textOrPrompt returns v, or asks for it when empty.
func (c *CLI) textOrPrompt(v, prompt string) (string, error) {
	if v != "" {
		return v, nil
	}
	return GetSimpleText(c.in, prompt, c.out)
}

func (c *CLI) userAdd(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("user-add", flag.ContinueOnError)
	name := fs.String("user", "", "user name")
	email := fs.String("email", "", "email address")
	if err := parse(fs, args); err != nil {
		return err
	}

	userName, err := c.textOrPrompt(*name, "Enter user name")
	if err != nil {
		return err
	}
	mail, err := c.textOrPrompt(*email, "Enter email")
	if err != nil {
		return err
	}

	pw, err := GetPassword(c.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	u, err := c.users.Register(ctx, userName, mail, string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "user %s created with id %d\n", u.UserName, u.ID)
	return nil
}

func (c *CLI) token(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	name := fs.String("user", "", "user name")
	if err := parse(fs, args); err != nil {
		return err
	}

	userName, err := c.textOrPrompt(*name, "Enter user name")
	if err != nil {
		return err
	}

	pw, err := GetPassword(c.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(pw)

	res, err := c.users.Login(ctx, userName, string(pw))
	if err != nil {
		return err
	}

	fmt.Fprintln(c.out, res.Token)
	fmt.Fprintf(c.out, "expires at %s\n", res.ExpiresAt.UTC().Format(time.RFC3339))
	return nil
}

func (c *CLI) issue(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("issue", flag.ContinueOnError)
	userID := fs.Int64("user-id", 0, "owner user id")
	name := fs.String("name", "", "key label")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *userID <= 0 {
		return fmt.Errorf("%w: -user-id is required", ErrUsage)
	}

	raw, key, err := c.keys.IssueNamed(ctx, *userID, strings.TrimSpace(*name))
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "api key %d issued for user %d\n", key.ID, key.UserID)
	fmt.Fprintln(c.out, raw)
	fmt.Fprintln(c.out, "Store this key securely. It will not be shown again.")
	return nil
}

func (c *CLI) revoke(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	id := fs.Int64("id", 0, "api key id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("%w: -id is required", ErrUsage)
	}

	deleted, err := c.keys.Revoke(ctx, *id)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Fprintf(c.out, "api key %d revoked\n", *id)
	} else {
		fmt.Fprintf(c.out, "api key %d not found\n", *id)
	}
	return nil
}
