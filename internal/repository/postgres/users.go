package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iklanku/adpilot/internal/domain"
)

// UsersRepo reads account records for authorization and notification
// routing.
type UsersRepo struct{ db *sql.DB }

// NewUsersRepo creates a Postgres-backed users repository.
func NewUsersRepo(db *sql.DB) *UsersRepo { return &UsersRepo{db: db} }

// Role returns the user's role. Unknown users come back as plain users so a
// missing row never grants a limit bypass.
func (r *UsersRepo) Role(ctx context.Context, userID string) (domain.Role, error) {
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT role FROM users WHERE id = $1
	`, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return domain.RoleUser, nil
	}
	if err != nil {
		return domain.RoleUser, fmt.Errorf("role for user %s: %w", userID, err)
	}
	return domain.Role(role), nil
}

// TelegramChatID returns the user's connected Telegram chat, 0 when none is
// linked.
func (r *UsersRepo) TelegramChatID(ctx context.Context, userID string) (int64, error) {
	var chatID sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT telegram_chat_id FROM users WHERE id = $1
	`, userID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("telegram chat for user %s: %w", userID, err)
	}
	return chatID.Int64, nil
}
