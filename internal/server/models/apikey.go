package models

import "time"

// MaxAPIKeyNameLength bounds the human label of an API key.
const MaxAPIKeyNameLength = 128

// APIKey is the stored form of an issued API key. Only the hash of the raw
// key is kept.
type APIKey struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	KeyHash   string    `json:"-"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// APIKeyView is the external representation of an API key.
type APIKeyView struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// ToView drops the hash.
func (k *APIKey) ToView() APIKeyView {
	return APIKeyView{
		ID:        k.ID,
		UserID:    k.UserID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

// ToViews maps a slice of keys, preserving order.
func ToViews(keys []*APIKey) []APIKeyView {
	views := make([]APIKeyView, 0, len(keys))
	for _, k := range keys {
		views = append(views, k.ToView())
	}
	return views
}
