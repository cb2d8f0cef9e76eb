package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. If the database cannot be migrated to this version, it's a
// fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema: pending transactions, transactions, dedup indexes",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS pending_transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					message_hash TEXT NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					amount TEXT NOT NULL DEFAULT '0',
					currency TEXT NOT NULL DEFAULT 'INR',
					type TEXT NOT NULL DEFAULT 'expense',
					merchant TEXT,
					category TEXT,
					sub_category TEXT,
					payment_method TEXT,
					account_ref TEXT,
					balance_seen INTEGER NOT NULL DEFAULT 0,
					parse_confidence REAL NOT NULL DEFAULT 0,
					confidence REAL NOT NULL DEFAULT 0,
					source_kind TEXT NOT NULL,
					source_sender TEXT,
					source_message_id TEXT,
					source_subject TEXT,
					raw_content TEXT,
					message_date DATETIME,
					strategy TEXT,
					needs_manual_review INTEGER NOT NULL DEFAULT 0,
					notification_sent INTEGER NOT NULL DEFAULT 0,
					user_feedback TEXT,
					rejection_reason TEXT,
					approved_transaction_id TEXT,
					location_json TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					expires_at DATETIME,
					processed_at DATETIME
				)`,
				`CREATE UNIQUE INDEX idx_pending_user_hash ON pending_transactions(user_id, message_hash)`,
				`CREATE INDEX idx_pending_status_expires ON pending_transactions(status, expires_at)`,
				`CREATE INDEX idx_pending_user_status ON pending_transactions(user_id, status)`,

				`CREATE TABLE IF NOT EXISTS transactions (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					message_hash TEXT NOT NULL,
					amount TEXT NOT NULL,
					currency TEXT NOT NULL DEFAULT 'INR',
					type TEXT NOT NULL,
					category TEXT,
					sub_category TEXT,
					merchant TEXT,
					note TEXT,
					payment_method TEXT,
					source_kind TEXT,
					source_sender TEXT,
					source_message_id TEXT,
					source_subject TEXT,
					tags_json TEXT,
					location_json TEXT,
					date DATETIME NOT NULL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE UNIQUE INDEX idx_transactions_user_hash ON transactions(user_id, message_hash)`,
				`CREATE INDEX idx_transactions_user_date ON transactions(user_id, date)`,
				`CREATE INDEX idx_transactions_merchant ON transactions(merchant)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Merchant pattern and merchant location learning stores",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS merchant_patterns (
					user_id TEXT NOT NULL,
					key TEXT NOT NULL,
					canonical_name TEXT NOT NULL,
					variations_json TEXT,
					category_json TEXT,
					payment_json TEXT,
					use_count INTEGER NOT NULL DEFAULT 0,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (user_id, key)
				)`,

				`CREATE TABLE IF NOT EXISTS merchant_locations (
					user_id TEXT NOT NULL,
					key TEXT NOT NULL,
					canonical_name TEXT,
					lat REAL NOT NULL DEFAULT 0,
					lng REAL NOT NULL DEFAULT 0,
					samples_json TEXT,
					visit_count INTEGER NOT NULL DEFAULT 0,
					last_visit DATETIME,
					PRIMARY KEY (user_id, key)
				)`,

				`CREATE TABLE IF NOT EXISTS location_samples (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					user_id TEXT NOT NULL,
					lat REAL NOT NULL,
					lng REAL NOT NULL,
					recorded_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_location_samples_user_time ON location_samples(user_id, recorded_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Email parsing and email location pattern stores",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS email_parsing_patterns (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL DEFAULT '',
					sender TEXT NOT NULL,
					merchant TEXT,
					category TEXT,
					payment_method TEXT,
					type TEXT,
					amount TEXT NOT NULL DEFAULT '0',
					confidence REAL NOT NULL DEFAULT 0,
					is_global INTEGER NOT NULL DEFAULT 0,
					confirmed_by_users INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					last_updated DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_email_patterns_sender ON email_parsing_patterns(sender)`,
				`CREATE INDEX idx_email_patterns_user_sender ON email_parsing_patterns(user_id, sender)`,
				// One global pattern per sender; promotion relies on this
				// for its "update if exists else insert" upsert.
				`CREATE UNIQUE INDEX idx_email_patterns_global ON email_parsing_patterns(sender) WHERE is_global = 1`,

				`CREATE TABLE IF NOT EXISTS email_location_patterns (
					id TEXT PRIMARY KEY,
					user_id TEXT NOT NULL,
					sender TEXT NOT NULL,
					merchant TEXT,
					pattern TEXT NOT NULL,
					location_json TEXT,
					successes INTEGER NOT NULL DEFAULT 0,
					attempts INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					last_matched DATETIME
				)`,
				`CREATE INDEX idx_email_location_user_sender ON email_location_patterns(user_id, sender)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
}

// Migrate applies all pending migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		err := s.withTx(ctx, func(tx *sql.Tx) error {
			if err := m.Up(tx); err != nil {
				return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
			}
			_, err := tx.Exec(
				`INSERT INTO schema_migrations (version, description) VALUES (?, ?)`,
				m.Version, m.Description)
			return err
		})
		if err != nil {
			return err
		}

		slog.Info("applied migration", "version", m.Version, "description", m.Description)
	}

	return nil
}
