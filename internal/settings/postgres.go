package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"listbridge/internal/types"
)

// DBTX abstracts the pgx query surface so the store works with a pool, a
// single connection, or a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB is the surface the Postgres store needs: plain queries plus the ability
// to open a transaction for the mapping table swap. *pgxpool.Pool satisfies it.
type DB interface {
	DBTX
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists settings in two tables:
//
//	settings(key TEXT PRIMARY KEY, value TEXT NOT NULL)
//	product_group_mappings(product_id TEXT PRIMARY KEY, group_id TEXT NOT NULL)
type PostgresStore struct {
	db     DB
	logger *slog.Logger
}

// NewPostgresStore creates a settings store backed by Postgres.
func NewPostgresStore(db DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

// EnsureSchema creates the settings tables when they do not exist yet. The
// service owns its schema; there is no separate migration pipeline for two
// key-value tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS product_group_mappings (
			product_id TEXT PRIMARY KEY,
			group_id   TEXT NOT NULL
		);`

	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to ensure settings schema", err)
	}
	return nil
}

func (s *PostgresStore) GetSecrets(ctx context.Context) (Secrets, error) {
	const query = `SELECT key, value FROM settings WHERE key = ANY($1)`

	keys := []string{KeyStripeSecretKey, KeyMailerLiteAPIKey, KeyWebhookSecret}
	rows, err := s.db.Query(ctx, query, keys)
	if err != nil {
		return Secrets{}, types.NewAppError(types.ErrCodeInternalDB, "failed to load secrets", err)
	}
	defer rows.Close()

	var secrets Secrets
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Secrets{}, types.NewAppError(types.ErrCodeInternalDB, "failed to scan secret row", err)
		}
		switch key {
		case KeyStripeSecretKey:
			secrets.StripeSecretKey = types.SecretString(value)
		case KeyMailerLiteAPIKey:
			secrets.MailerLiteAPIKey = types.SecretString(value)
		case KeyWebhookSecret:
			secrets.WebhookSecret = types.SecretString(value)
		}
	}
	if err := rows.Err(); err != nil {
		return Secrets{}, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate secret rows", err)
	}

	return secrets, nil
}

func (s *PostgresStore) UpdateSecrets(ctx context.Context, update SecretsUpdate) error {
	const upsert = `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	pairs := map[string]*string{
		KeyStripeSecretKey:  update.StripeSecretKey,
		KeyMailerLiteAPIKey: update.MailerLiteAPIKey,
		KeyWebhookSecret:    update.WebhookSecret,
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
	}()

	for key, value := range pairs {
		if value == nil {
			continue
		}
		if _, err := tx.Exec(ctx, upsert, key, *value); err != nil {
			return types.NewAppError(
				types.ErrCodeInternalDB,
				fmt.Sprintf("failed to store setting %s", key),
				err,
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit secrets update", err)
	}
	return nil
}

func (s *PostgresStore) GetMappings(ctx context.Context) (map[string]string, error) {
	const query = `SELECT product_id, group_id FROM product_group_mappings`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load mappings", err)
	}
	defer rows.Close()

	mappings := make(map[string]string)
	for rows.Next() {
		var productID, groupID string
		if err := rows.Scan(&productID, &groupID); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan mapping row", err)
		}
		mappings[productID] = groupID
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate mapping rows", err)
	}

	return mappings, nil
}

// ReplaceMappings swaps the whole mapping table atomically. The admin UI
// always submits the full table, so a delete-and-insert inside one
// transaction keeps concurrent webhook reads consistent.
func (s *PostgresStore) ReplaceMappings(ctx context.Context, mappings map[string]string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to begin transaction", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Warn("rollback failed", slog.String("error", rbErr.Error()))
		}
	}()

	if _, err := tx.Exec(ctx, `DELETE FROM product_group_mappings`); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear mappings", err)
	}

	const insert = `INSERT INTO product_group_mappings (product_id, group_id) VALUES ($1, $2)`
	for productID, groupID := range mappings {
		if _, err := tx.Exec(ctx, insert, productID, groupID); err != nil {
			return types.NewAppError(
				types.ErrCodeInternalDB,
				fmt.Sprintf("failed to store mapping for %s", productID),
				err,
			)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to commit mappings", err)
	}
	return nil
}
