package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

const pendingColumns = `id, user_id, message_hash, status, amount, currency, type,
	merchant, category, sub_category, payment_method, account_ref, balance_seen,
	parse_confidence, confidence, source_kind, source_sender, source_message_id,
	source_subject, raw_content, message_date, strategy, needs_manual_review,
	notification_sent, user_feedback, rejection_reason, approved_transaction_id,
	location_json, created_at, expires_at, processed_at`

// CreatePendingIfAbsent inserts a pending transaction unless the
// (user, hash) pair already exists. The unique index makes this safe under
// concurrent deliveries; a lost race surfaces as common.ErrDuplicateEntry.
func (s *SQLiteStorage) CreatePendingIfAbsent(ctx context.Context, p *model.PendingTransaction) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePending(p); err != nil {
		return err
	}

	locJSON, err := marshalLocation(p.Location)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pending_transactions (`+pendingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		p.ID, p.UserID, p.MessageHash, p.Status,
		p.Candidate.Amount.String(), p.Candidate.Currency, p.Candidate.Type,
		p.Candidate.Merchant, p.Candidate.Category, p.Candidate.SubCategory,
		p.Candidate.PaymentMethod, p.Candidate.AccountRef, p.Candidate.BalanceSeen,
		p.Candidate.Confidence, p.Confidence,
		p.Source.Kind, p.Source.SenderIdentifier(), sourceMessageID(p.Source), sourceSubject(p.Source),
		p.RawContent, p.MessageDate, p.Strategy, p.NeedsManualReview,
		p.NotificationSent, p.UserFeedback, p.RejectionReason, nullString(p.ApprovedTransactionID),
		locJSON, p.CreatedAt, p.ExpiresAt, nullTime(p.ProcessedAt))
	if err != nil {
		return fmt.Errorf("failed to insert pending transaction: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return common.ErrDuplicateEntry
	}
	return nil
}

// GetPendingTransaction retrieves a pending transaction by id.
func (s *SQLiteStorage) GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_transactions WHERE id = ?`, id)
	return scanPending(row)
}

// GetPendingByHash retrieves a pending transaction by its dedup
// fingerprint.
func (s *SQLiteStorage) GetPendingByHash(ctx context.Context, userID, hash string) (*model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+pendingColumns+` FROM pending_transactions WHERE user_id = ? AND message_hash = ?`,
		userID, hash)
	return scanPending(row)
}

// ListPendingByUser returns the user's records still awaiting review,
// newest first.
func (s *SQLiteStorage) ListPendingByUser(ctx context.Context, userID string) ([]model.PendingTransaction, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+pendingColumns+` FROM pending_transactions
		WHERE user_id = ? AND status = ?
		ORDER BY created_at DESC
	`, userID, model.StatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.PendingTransaction
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// MarkNotificationSent latches the notification flag. The flag never
// resets, so a record gets at most one push.
func (s *SQLiteStorage) MarkNotificationSent(ctx context.Context, id string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_transactions SET notification_sent = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}
	return nil
}

// ApprovePending atomically creates the transaction and flips the pending
// record to approved. The WHERE status guard makes repeat calls fail with
// common.ErrAlreadyProcessed instead of creating a second transaction.
func (s *SQLiteStorage) ApprovePending(ctx context.Context, pendingID string, txn *model.Transaction, feedback string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateTransaction(txn); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_transactions
			SET status = ?, approved_transaction_id = ?, user_feedback = ?, processed_at = ?
			WHERE id = ? AND status = ?
		`, model.StatusApproved, txn.ID, feedback, time.Now(), pendingID, model.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to approve pending transaction: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.pendingTransitionError(ctx, tx, pendingID)
		}

		return insertTransactionTx(ctx, tx, txn)
	})
}

// RejectPending flips the record to rejected with an optional reason.
func (s *SQLiteStorage) RejectPending(ctx context.Context, pendingID, reason string) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(pendingID, "pendingID"); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE pending_transactions
			SET status = ?, rejection_reason = ?, user_feedback = 'rejected', processed_at = ?
			WHERE id = ? AND status = ?
		`, model.StatusRejected, reason, time.Now(), pendingID, model.StatusPending)
		if err != nil {
			return fmt.Errorf("failed to reject pending transaction: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return s.pendingTransitionError(ctx, tx, pendingID)
		}
		return nil
	})
}

// ExpirePendingBefore flips every overdue pending record to expired.
// Re-running is a no-op for already-expired records.
func (s *SQLiteStorage) ExpirePendingBefore(ctx context.Context, now time.Time) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_transactions
		SET status = ?, processed_at = ?
		WHERE status = ? AND expires_at <= ?
	`, model.StatusExpired, now, model.StatusPending, now)
	if err != nil {
		return 0, fmt.Errorf("failed to expire pending transactions: %w", err)
	}
	return res.RowsAffected()
}

// pendingTransitionError distinguishes "gone" from "already decided" when
// a guarded transition touched zero rows.
func (s *SQLiteStorage) pendingTransitionError(ctx context.Context, q queryable, pendingID string) error {
	var status string
	err := q.QueryRowContext(ctx,
		`SELECT status FROM pending_transactions WHERE id = ?`, pendingID).Scan(&status)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: pending transaction %s", common.ErrNotFound, pendingID)
	}
	if err != nil {
		return fmt.Errorf("failed to check pending status: %w", err)
	}
	return fmt.Errorf("%w: status is %s", common.ErrAlreadyProcessed, status)
}

// rowScanner abstracts *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPending(row rowScanner) (*model.PendingTransaction, error) {
	var (
		p                                  model.PendingTransaction
		amount                             string
		kind, sender, messageID, subject   sql.NullString
		merchant, category, subCat         sql.NullString
		payMethod, accountRef              sql.NullString
		rawContent, strategy               sql.NullString
		feedback, rejection, approvedTxnID sql.NullString
		locJSON                            sql.NullString
		messageDate, processedAt           sql.NullTime
	)

	err := row.Scan(
		&p.ID, &p.UserID, &p.MessageHash, &p.Status, &amount, &p.Candidate.Currency,
		&p.Candidate.Type, &merchant, &category, &subCat, &payMethod, &accountRef,
		&p.Candidate.BalanceSeen, &p.Candidate.Confidence, &p.Confidence,
		&kind, &sender, &messageID, &subject, &rawContent, &messageDate, &strategy,
		&p.NeedsManualReview, &p.NotificationSent, &feedback, &rejection,
		&approvedTxnID, &locJSON, &p.CreatedAt, &p.ExpiresAt, &processedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: pending transaction", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pending transaction: %w", err)
	}

	p.Candidate.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
	}
	p.Candidate.Merchant = merchant.String
	p.Candidate.Category = category.String
	p.Candidate.SubCategory = subCat.String
	p.Candidate.PaymentMethod = model.PaymentMethod(payMethod.String)
	p.Candidate.AccountRef = accountRef.String
	p.RawContent = rawContent.String
	p.Strategy = model.ParseStrategy(strategy.String)
	p.UserFeedback = feedback.String
	p.RejectionReason = rejection.String
	p.ApprovedTransactionID = approvedTxnID.String
	if messageDate.Valid {
		p.MessageDate = messageDate.Time
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}

	p.Source = rebuildSource(kind.String, sender.String, messageID.String, subject.String)

	p.Location, err = unmarshalLocation(locJSON)
	if err != nil {
		return nil, err
	}

	return &p, nil
}

// rebuildSource reconstitutes the tagged source variant from its columns.
func rebuildSource(kind, sender, messageID, subject string) model.Source {
	src := model.Source{Kind: model.SourceKind(kind)}
	switch src.Kind {
	case model.SourceSMS:
		src.SMS = &model.SMSSource{Sender: sender}
	case model.SourceEmail, model.SourceGmail:
		src.Email = &model.EmailSource{MessageID: messageID, Subject: subject, From: sender}
	case model.SourceManual:
	}
	return src
}

func sourceMessageID(src model.Source) string {
	if src.Email != nil {
		return src.Email.MessageID
	}
	return ""
}

func sourceSubject(src model.Source) string {
	if src.Email != nil {
		return src.Email.Subject
	}
	return ""
}

func marshalLocation(loc *model.Location) (sql.NullString, error) {
	if loc == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(loc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal location: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalLocation(raw sql.NullString) (*model.Location, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var loc model.Location
	if err := json.Unmarshal([]byte(raw.String), &loc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal location: %w", err)
	}
	return &loc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
