package server

import (
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/keyforge/internal/cryptox"
	"github.com/dmitrijs2005/keyforge/internal/logging"
	"github.com/dmitrijs2005/keyforge/internal/server/auth"
	"github.com/dmitrijs2005/keyforge/internal/server/config"
	"github.com/dmitrijs2005/keyforge/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/keyforge/internal/server/services"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Core holds the services shared by the HTTP server and the operator CLI.
type Core struct {
	DB       *sql.DB
	Repos    repomanager.RepositoryManager
	Users    *services.UserService
	APIKeys  *services.APIKeyService
	Verifier *auth.Verifier
}

// NewCore wires services on top of db according to cfg. It does not touch
// the database.
func NewCore(cfg *config.Config, db *sql.DB, logger logging.Logger) (*Core, error) {
	hasher, err := cryptox.NewHasher(cfg.HashAlgorithm, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hasher init error: %w", err)
	}

	method, err := auth.SigningMethod(cfg.SigningAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("signing method init error: %w", err)
	}

	secret := []byte(cfg.SecretKey)
	rm := repomanager.NewPostgresRepositoryManager()
	issuer := auth.NewIssuer(secret, method, cfg.AccessTokenValidityDuration)

	return &Core{
		DB:       db,
		Repos:    rm,
		Users:    services.NewUserService(db, rm, hasher, issuer, logger),
		APIKeys:  services.NewAPIKeyService(db, rm, hasher, cryptox.RandomKeyGenerator{}, logger),
		Verifier: auth.NewVerifier(secret, method, rm.Users(db)),
	}, nil
}

// OpenDB opens the pgx-backed pool for dsn and checks it is reachable.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}
