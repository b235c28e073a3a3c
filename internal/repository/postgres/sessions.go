package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/iklanku/adpilot/internal/domain"
)

// SessionsRepo verifies bearer tokens against the sessions table. Tokens are
// stored hashed; the raw token never touches the database.
type SessionsRepo struct{ db *sql.DB }

// NewSessionsRepo creates a Postgres-backed session verifier.
func NewSessionsRepo(db *sql.DB) *SessionsRepo { return &SessionsRepo{db: db} }

// ErrSessionInvalid is returned for unknown or expired tokens.
var ErrSessionInvalid = errors.New("session invalid or expired")

// Verify resolves a bearer token to the session's user and role.
func (r *SessionsRepo) Verify(ctx context.Context, token string) (string, domain.Role, error) {
	sum := sha256.Sum256([]byte(token))
	hash := hex.EncodeToString(sum[:])

	var userID, role string
	err := r.db.QueryRowContext(ctx, `
		SELECT u.id, u.role
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > NOW()
	`, hash).Scan(&userID, &role)
	if err == sql.ErrNoRows {
		return "", "", ErrSessionInvalid
	}
	if err != nil {
		return "", "", fmt.Errorf("verify session: %w", err)
	}
	return userID, domain.Role(role), nil
}
