package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is a connected Shopee seller account.
type Store struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id" db:"user_id"`
	Name   string `json:"name" db:"name"`
	Active bool   `json:"active" db:"active"`
}

// StoresRepo reads connected seller accounts. It backs both store
// re-validation in the rule engine and session cookie lookup for the Shopee
// client.
type StoresRepo struct{ db *sql.DB }

// NewStoresRepo creates a Postgres-backed stores repository.
func NewStoresRepo(db *sql.DB) *StoresRepo { return &StoresRepo{db: db} }

// StoreActive reports whether the store exists, belongs to the user, and is
// still active. Assignments reference stores; a revoked or transferred store
// must fail this check even if a rule still names it.
func (r *StoresRepo) StoreActive(ctx context.Context, userID, storeID string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, `
		SELECT active FROM stores WHERE id = $1 AND user_id = $2
	`, storeID, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check store %s: %w", storeID, err)
	}
	return active, nil
}

// SessionCookie returns the stored seller session cookie for a store.
func (r *StoresRepo) SessionCookie(ctx context.Context, storeID string) (string, error) {
	var cookie string
	err := r.db.QueryRowContext(ctx, `
		SELECT session_cookie FROM stores WHERE id = $1 AND active
	`, storeID).Scan(&cookie)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("session cookie for store %s: %w", storeID, err)
	}
	return cookie, nil
}

// ListForUser returns the user's active stores.
func (r *StoresRepo) ListForUser(ctx context.Context, userID string) ([]Store, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, name, active
		FROM stores
		WHERE user_id = $1 AND active
		ORDER BY name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list stores for user %s: %w", userID, err)
	}
	defer rows.Close()

	var out []Store
	for rows.Next() {
		var s Store
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.Active); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StoreIDsForUser returns the IDs of the user's active stores, used to scope
// log queries for non-privileged users.
func (r *StoresRepo) StoreIDsForUser(ctx context.Context, userID string) ([]string, error) {
	stores, err := r.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(stores))
	for _, s := range stores {
		ids = append(ids, s.ID)
	}
	return ids, nil
}
