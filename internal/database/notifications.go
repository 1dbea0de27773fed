package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Execer is satisfied by *sqlx.DB, *sqlx.Tx, *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// AddNotification creates an in-app notification for a user. Call it with the
// transaction of the change it announces so both commit together.
func AddNotification(ctx context.Context, ex Execer, userID int64, message, link string) error {
	var nullLink sql.NullString
	if link != "" {
		nullLink = sql.NullString{String: link, Valid: true}
	}

	query := `
		INSERT INTO notifications
		(user_id, message, link, is_read, created_at)
		VALUES (?, ?, ?, 0, ?)`

	if _, err := ex.ExecContext(ctx, query, userID, message, nullLink, time.Now()); err != nil {
		return fmt.Errorf("failed to add notification: %w", err)
	}
	return nil
}
