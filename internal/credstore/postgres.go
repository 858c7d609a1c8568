package credstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
    account_id TEXT NOT NULL,
    field TEXT NOT NULL,
    ciphertext TEXT NOT NULL,
    PRIMARY KEY (account_id, field)
);
`

// PostgresStore keeps encrypted credential fields in a PostgreSQL table.
// Intended for deployments where sessions are managed on a shared host
// rather than in a per-user file.
type PostgresStore struct {
	DB *sql.DB
	observers
}

// OpenPostgres connects to the database at dsn, verifies the connection
// and ensures the schema exists.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{DB: db}, nil
}

// NewPostgresStore wraps an existing database handle without touching the
// schema. Used by tests.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Get(ctx context.Context, accountID, field string) (string, error) {
	var ct string
	err := s.DB.QueryRowContext(
		ctx,
		`SELECT ciphertext FROM credentials WHERE account_id = $1 AND field = $2`,
		accountID, field,
	).Scan(&ct)
	if err == sql.ErrNoRows {
		return "", ErrFieldNotFound
	}
	return ct, err
}

func (s *PostgresStore) Put(ctx context.Context, accountID, field, ciphertext string) error {
	_, err := s.DB.ExecContext(
		ctx,
		`INSERT INTO credentials (account_id, field, ciphertext) VALUES ($1, $2, $3)
         ON CONFLICT (account_id, field) DO UPDATE SET ciphertext = EXCLUDED.ciphertext`,
		accountID, field, ciphertext,
	)
	return err
}

func (s *PostgresStore) Fields(ctx context.Context, accountID string) (map[string]string, error) {
	rows, err := s.DB.QueryContext(
		ctx,
		`SELECT field, ciphertext FROM credentials WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var field, ct string
		if err := rows.Scan(&field, &ct); err != nil {
			return nil, err
		}
		out[field] = ct
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrAccountNotFound
	}
	return out, nil
}

// PutAll replaces the account's fields inside one transaction, so a
// passcode change can never leave a mixed-key record behind.
func (s *PostgresStore) PutAll(ctx context.Context, accountID string, fields map[string]string) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM credentials WHERE account_id = $1`,
		accountID,
	); err != nil {
		return err
	}
	for field, ct := range fields {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO credentials (account_id, field, ciphertext) VALUES ($1, $2, $3)`,
			accountID, field, ct,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) Remove(ctx context.Context, accountID string) error {
	res, err := s.DB.ExecContext(
		ctx,
		`DELETE FROM credentials WHERE account_id = $1`,
		accountID,
	)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows > 0 {
		s.notifyRemoved(accountID)
	}
	return nil
}
