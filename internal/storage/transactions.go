package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

const transactionColumns = `id, user_id, message_hash, amount, currency, type,
	category, sub_category, merchant, note, payment_method, source_kind,
	source_sender, source_message_id, source_subject, tags_json, location_json,
	date, created_at`

// SaveTransaction inserts a materialized transaction. A (user, hash)
// collision surfaces as common.ErrDuplicateEntry.
func (s *SQLiteStorage) SaveTransaction(ctx context.Context, txn *model.Transaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertTransactionTx(ctx, tx, txn)
	})
}

func insertTransactionTx(ctx context.Context, tx *sql.Tx, txn *model.Transaction) error {
	tagsJSON, err := json.Marshal(txn.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	locJSON, err := marshalLocation(txn.Location)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		txn.ID, txn.UserID, txn.MessageHash, txn.Amount.String(), txn.Currency,
		txn.Type, txn.Category, txn.SubCategory, txn.Merchant, txn.Note,
		txn.PaymentMethod, txn.Source.Kind, txn.Source.SenderIdentifier(),
		sourceMessageID(txn.Source), sourceSubject(txn.Source),
		string(tagsJSON), locJSON, txn.Date, txn.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return common.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// GetTransactionByID retrieves a transaction by id.
func (s *SQLiteStorage) GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	return scanTransaction(row)
}

// GetTransactionByHash retrieves a transaction by its dedup fingerprint.
func (s *SQLiteStorage) GetTransactionByHash(ctx context.Context, userID, hash string) (*model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = ? AND message_hash = ?`,
		userID, hash)
	return scanTransaction(row)
}

// ListTransactionsByUser returns the user's transactions, newest first.
func (s *SQLiteStorage) ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE user_id = ?
		ORDER BY date DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *txn)
	}
	return result, rows.Err()
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		txn                              model.Transaction
		amount                           string
		category, subCat, merchant, note sql.NullString
		payMethod                        sql.NullString
		kind, sender, messageID, subject sql.NullString
		tagsJSON, locJSON                sql.NullString
	)

	err := row.Scan(
		&txn.ID, &txn.UserID, &txn.MessageHash, &amount, &txn.Currency, &txn.Type,
		&category, &subCat, &merchant, &note, &payMethod, &kind, &sender,
		&messageID, &subject, &tagsJSON, &locJSON, &txn.Date, &txn.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan transaction: %w", err)
	}

	txn.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	txn.Category = category.String
	txn.SubCategory = subCat.String
	txn.Merchant = merchant.String
	txn.Note = note.String
	txn.PaymentMethod = model.PaymentMethod(payMethod.String)
	txn.Source = rebuildSource(kind.String, sender.String, messageID.String, subject.String)

	if tagsJSON.Valid && tagsJSON.String != "" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &txn.Tags); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}
	txn.Location, err = unmarshalLocation(locJSON)
	if err != nil {
		return nil, err
	}

	return &txn, nil
}

// isUniqueViolation reports whether err is a unique-constraint failure
// from the sqlite driver.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
