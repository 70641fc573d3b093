package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/auth-demo/internal/apperror"
	"github.com/sakif/auth-demo/internal/model"
	"github.com/sakif/auth-demo/internal/repository"
)

var _ repository.AccountRepository = (*DB)(nil)

// CreateAccount inserts a new local account.
//
// The ID is a random UUID, matching the shape of the hosted provider's user
// IDs so the rest of the app cannot tell the two providers apart. Emails are
// compared case-insensitively (COLLATE NOCASE on the column).
func (db *DB) CreateAccount(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.ID = uuid.NewString()
	account.Email = strings.TrimSpace(account.Email)
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, email, password_hash, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		account.ID,
		account.Email,
		account.PasswordHash,
		account.CreatedAt,
		account.UpdatedAt,
	)
	if err != nil {
		// modernc reports constraint failures as plain errors; matching on the
		// message is the documented way to detect them without cgo.
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return apperror.Conflict("account", account.Email)
		}
		return fmt.Errorf("sqlite: inserting account %s: %w", account.Email, err)
	}

	return nil
}

// GetAccountByEmail looks an account up by (case-insensitive) email.
func (db *DB) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM accounts WHERE email = ?`,
		strings.TrimSpace(email),
	)
	return scanAccount(row, "email", email)
}

// GetAccountByID looks an account up by its UUID.
func (db *DB) GetAccountByID(ctx context.Context, id string) (*model.Account, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at, updated_at
		 FROM accounts WHERE id = ?`,
		id,
	)
	return scanAccount(row, "id", id)
}

func scanAccount(row *sql.Row, by, value string) (*model.Account, error) {
	var a model.Account
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("account", value)
		}
		return nil, fmt.Errorf("sqlite: getting account by %s %s: %w", by, value, err)
	}
	return &a, nil
}
