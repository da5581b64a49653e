package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/picshelf/service/internal/storage"
)

// Unique constraint names from the accounts migration.
const (
	usernameConstraint = "accounts_username_key"
	emailConstraint    = "accounts_email_key"
)

// DB is the subset of *pgxpool.Pool the repository needs.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository stores accounts and their media in PostgreSQL.
type PostgresRepository struct {
	db DB
}

// NewPostgresRepository creates a PostgresRepository with the given pool.
func NewPostgresRepository(db DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account and returns the created record.
func (r *PostgresRepository) Create(ctx context.Context, username, email, passwordHash string) (*Account, error) {
	a := &Account{Username: username, Email: email, PasswordHash: passwordHash}
	err := r.db.QueryRow(ctx,
		`INSERT INTO accounts (username, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		username, email, passwordHash,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		if taken := uniqueViolation(err); taken != nil {
			return nil, taken
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// GetByUsername fetches an account and its media ordered by position.
func (r *PostgresRepository) GetByUsername(ctx context.Context, username string) (*Account, error) {
	a := &Account{}
	err := r.db.QueryRow(ctx,
		`SELECT id, username, email, password_hash, created_at
		 FROM accounts WHERE username = $1`,
		username,
	).Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account by username: %w", err)
	}

	rows, err := r.db.Query(ctx,
		`SELECT remote_id, display_name, link, removal_handle
		 FROM media_objects WHERE account_id = $1
		 ORDER BY position`,
		a.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var m storage.MediaObject
		if err := rows.Scan(&m.RemoteID, &m.DisplayName, &m.Link, &m.RemovalHandle); err != nil {
			return nil, fmt.Errorf("scan media: %w", err)
		}
		a.Media = append(a.Media, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list media: %w", err)
	}
	return a, nil
}

// AppendMedia locks the account row and appends obj after the last position.
func (r *PostgresRepository) AppendMedia(ctx context.Context, username string, obj storage.MediaObject) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		accountID, err := lockAccount(ctx, tx, username)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO media_objects (account_id, position, remote_id, display_name, link, removal_handle)
			 VALUES ($1, (SELECT COALESCE(MAX(position), 0) + 1 FROM media_objects WHERE account_id = $1), $2, $3, $4, $5)`,
			accountID, obj.RemoteID, obj.DisplayName, obj.Link, obj.RemovalHandle,
		)
		if err != nil {
			return fmt.Errorf("append media: %w", err)
		}
		return nil
	})
}

// RemoveMedia locks the account row and deletes the object with remoteID.
func (r *PostgresRepository) RemoveMedia(ctx context.Context, username, remoteID string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		accountID, err := lockAccount(ctx, tx, username)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`DELETE FROM media_objects WHERE account_id = $1 AND remote_id = $2`,
			accountID, remoteID,
		)
		if err != nil {
			return fmt.Errorf("remove media: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func lockAccount(ctx context.Context, tx pgx.Tx, username string) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`SELECT id FROM accounts WHERE username = $1 FOR UPDATE`,
		username,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lock account: %w", err)
	}
	return id, nil
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// uniqueViolation maps a PostgreSQL unique_violation (23505) on a known
// constraint onto the matching sentinel, or returns nil for any other error.
func uniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return nil
	}
	switch pgErr.ConstraintName {
	case emailConstraint:
		return ErrEmailTaken
	case usernameConstraint:
		return ErrUsernameTaken
	default:
		return nil
	}
}
