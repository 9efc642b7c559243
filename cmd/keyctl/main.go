package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/keyforge/internal/flagx"
	"github.com/dmitrijs2005/keyforge/internal/keyctl"
	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server"
	"github.com/dmitrijs2005/keyforge/internal/server/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := flagx.FromFirstPositional(os.Args[1:], config.ValueFlags)
	if len(args) == 0 {
		_ = keyctl.New(nil, nil, nil, os.Stdin, os.Stdout).Run(ctx, nil)
		return 2
	}

	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return 1
	}

	logger := logging.NewJSONLogger(os.Stderr, cfg.LogLevel)

	db, err := server.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer db.Close()

	core, err := server.NewCore(cfg, db, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	migrate := func(ctx context.Context) error {
		return core.Repos.RunMigrations(ctx, db)
	}

	cli := keyctl.New(core.Users, core.APIKeys, migrate, os.Stdin, os.Stdout)
	if err := cli.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, keyctl.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
