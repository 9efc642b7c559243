// Package apikeys declares the server-side repository contract for
// persisting API key records.
package apikeys

import (
	"context"

	"github.com/dmitrijs2005/keyforge/internal/server/models"
)

// Repository defines storage operations for API keys. Only hashes are stored.
type Repository interface {
	// Get returns the key with the given id or common.ErrorNotFound.
	Get(ctx context.Context, id int64) (*models.APIKey, error)

	// List returns every key in insertion order.
	List(ctx context.Context) ([]*models.APIKey, error)

	// ListByUser returns the keys owned by userID in insertion order.
	ListByUser(ctx context.Context, userID int64) ([]*models.APIKey, error)

	// Save inserts the key when ID is zero, otherwise inserts or replaces
	// the row with that id. The stored record is returned.
	Save(ctx context.Context, key *models.APIKey) (*models.APIKey, error)

	// Delete removes a key and reports whether a row existed.
	Delete(ctx context.Context, id int64) (bool, error)
}
