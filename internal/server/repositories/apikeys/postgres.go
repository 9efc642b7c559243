package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/keyforge/internal/common"
	"github.com/dmitrijs2005/keyforge/internal/dbx"
	"github.com/dmitrijs2005/keyforge/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, id int64) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, created_at
		FROM api_keys
		WHERE id = $1
	`
	key := &models.APIKey{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&key.ID, &key.UserID, &key.Name, &key.KeyHash, &key.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, created_at
		FROM api_keys
		ORDER BY id
	`
	return r.query(ctx, query)
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID int64) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, name, key_hash, created_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY id
	`
	return r.query(ctx, query, userID)
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.APIKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select api keys: %w", err)
	}
	defer rows.Close()

	result := []*models.APIKey{}
	for rows.Next() {
		var item models.APIKey
		if err := rows.Scan(&item.ID, &item.UserID, &item.Name, &item.KeyHash, &item.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save writes key in a single statement. A missing owner yields
// common.ErrorNotFound.
func (r *PostgresRepository) Save(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	var row *sql.Row
	if key.ID == 0 {
		query := `
			INSERT INTO api_keys (user_id, name, key_hash)
			VALUES ($1, $2, $3)
			RETURNING id, created_at
		`
		row = r.db.QueryRowContext(ctx, query, key.UserID, key.Name, key.KeyHash)
	} else {
		query := `
			INSERT INTO api_keys (id, user_id, name, key_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id)
			DO UPDATE SET
				user_id = EXCLUDED.user_id,
				name = EXCLUDED.name,
				key_hash = EXCLUDED.key_hash
			RETURNING id, created_at
		`
		row = r.db.QueryRowContext(ctx, query, key.ID, key.UserID, key.Name, key.KeyHash)
	}

	saved := *key
	if err := row.Scan(&saved.ID, &saved.CreatedAt); err != nil {
		if _, ok := dbx.IsForeignKeyViolation(err); ok {
			return nil, fmt.Errorf("owner %d: %w", key.UserID, common.ErrorNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &saved, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query := `
		DELETE FROM api_keys
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}
