package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/finsift/finsift/internal/model"
)

const emailPatternColumns = `id, user_id, sender, merchant, category,
	payment_method, type, amount, confidence, is_global, confirmed_by_users,
	created_at, last_updated`

// GetEmailPatterns returns the user's own patterns for a sender plus any
// global ones.
func (s *SQLiteStorage) GetEmailPatterns(ctx context.Context, userID, sender string) ([]model.EmailParsingPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sender, "sender"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailPatternColumns+` FROM email_parsing_patterns
		WHERE sender = ? AND (user_id = ? OR is_global = 1)
		ORDER BY confidence DESC
	`, sender, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get email patterns: %w", err)
	}
	return collectEmailPatterns(rows)
}

// ListUserEmailPatterns returns every non-global pattern for a sender
// across all users, for the promotion scan.
func (s *SQLiteStorage) ListUserEmailPatterns(ctx context.Context, sender string) ([]model.EmailParsingPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(sender, "sender"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailPatternColumns+` FROM email_parsing_patterns
		WHERE sender = ? AND is_global = 0
	`, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to list email patterns: %w", err)
	}
	return collectEmailPatterns(rows)
}

// SaveEmailPattern upserts a pattern. Global patterns are keyed by sender
// alone through a partial unique index, so concurrent promotions collapse
// into a single "update if exists else insert".
func (s *SQLiteStorage) SaveEmailPattern(ctx context.Context, pattern *model.EmailParsingPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("%w: email pattern", ErrNilParameter)
	}
	if err := validateString(pattern.Sender, "sender"); err != nil {
		return err
	}
	if !pattern.IsGlobal && pattern.UserID == "" {
		return fmt.Errorf("%w: non-global email pattern requires a user id", ErrInvalidPattern)
	}
	if pattern.LastUpdated.IsZero() {
		pattern.LastUpdated = time.Now()
	}
	if pattern.CreatedAt.IsZero() {
		pattern.CreatedAt = time.Now()
	}

	if pattern.IsGlobal {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO email_parsing_patterns (`+emailPatternColumns+`)
			VALUES (?, '', ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)
			ON CONFLICT(sender) WHERE is_global = 1 DO UPDATE SET
				merchant = excluded.merchant,
				category = excluded.category,
				payment_method = excluded.payment_method,
				type = excluded.type,
				amount = excluded.amount,
				confidence = excluded.confidence,
				confirmed_by_users = excluded.confirmed_by_users,
				last_updated = excluded.last_updated
		`, pattern.ID, pattern.Sender, pattern.Merchant, pattern.Category,
			pattern.PaymentMethod, pattern.Type, pattern.Amount.String(),
			pattern.Confidence, pattern.ConfirmedByUsers,
			pattern.CreatedAt, pattern.LastUpdated)
		if err != nil {
			return fmt.Errorf("failed to save global email pattern: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO email_parsing_patterns (`+emailPatternColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			merchant = excluded.merchant,
			category = excluded.category,
			payment_method = excluded.payment_method,
			type = excluded.type,
			amount = excluded.amount,
			confidence = excluded.confidence,
			last_updated = excluded.last_updated
	`, pattern.ID, pattern.UserID, pattern.Sender, pattern.Merchant,
		pattern.Category, pattern.PaymentMethod, pattern.Type,
		pattern.Amount.String(), pattern.Confidence, pattern.ConfirmedByUsers,
		pattern.CreatedAt, pattern.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save email pattern: %w", err)
	}
	return nil
}

func collectEmailPatterns(rows *sql.Rows) ([]model.EmailParsingPattern, error) {
	defer func() { _ = rows.Close() }()

	var result []model.EmailParsingPattern
	for rows.Next() {
		var (
			p                                 model.EmailParsingPattern
			merchant, category, payMethod, tt sql.NullString
			amount                            string
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.Sender, &merchant, &category,
			&payMethod, &tt, &amount, &p.Confidence, &p.IsGlobal,
			&p.ConfirmedByUsers, &p.CreatedAt, &p.LastUpdated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email pattern: %w", err)
		}
		p.Merchant = merchant.String
		p.Category = category.String
		p.PaymentMethod = model.PaymentMethod(payMethod.String)
		p.Type = model.TransactionType(tt.String)
		p.Amount, err = decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

const emailLocationColumns = `id, user_id, sender, merchant, pattern,
	location_json, successes, attempts, created_at, last_matched`

// GetEmailLocationPatterns returns the user's learned location patterns
// for a sender.
func (s *SQLiteStorage) GetEmailLocationPatterns(ctx context.Context, userID, sender string) ([]model.EmailLocationPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(sender, "sender"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+emailLocationColumns+` FROM email_location_patterns
		WHERE user_id = ? AND sender = ?
	`, userID, sender)
	if err != nil {
		return nil, fmt.Errorf("failed to get email location patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.EmailLocationPattern
	for rows.Next() {
		var (
			p           model.EmailLocationPattern
			merchant    sql.NullString
			locJSON     sql.NullString
			lastMatched sql.NullTime
		)
		err := rows.Scan(&p.ID, &p.UserID, &p.Sender, &merchant, &p.Pattern,
			&locJSON, &p.Successes, &p.Attempts, &p.CreatedAt, &lastMatched)
		if err != nil {
			return nil, fmt.Errorf("failed to scan email location pattern: %w", err)
		}
		p.Merchant = merchant.String
		if lastMatched.Valid {
			p.LastMatched = lastMatched.Time
		}
		loc, err := unmarshalLocation(locJSON)
		if err != nil {
			return nil, err
		}
		if loc != nil {
			p.Location = *loc
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// SaveEmailLocationPattern upserts by id.
func (s *SQLiteStorage) SaveEmailLocationPattern(ctx context.Context, pattern *model.EmailLocationPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if pattern == nil {
		return fmt.Errorf("%w: email location pattern", ErrNilParameter)
	}
	if pattern.UserID == "" || pattern.Sender == "" || pattern.Pattern == "" {
		return fmt.Errorf("%w: email location pattern requires user, sender, and pattern", ErrInvalidPattern)
	}
	if pattern.CreatedAt.IsZero() {
		pattern.CreatedAt = time.Now()
	}

	locJSON, err := marshalLocation(&pattern.Location)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO email_location_patterns (`+emailLocationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pattern = excluded.pattern,
			location_json = excluded.location_json,
			successes = excluded.successes,
			attempts = excluded.attempts,
			last_matched = excluded.last_matched
	`, pattern.ID, pattern.UserID, pattern.Sender, pattern.Merchant,
		pattern.Pattern, locJSON, pattern.Successes, pattern.Attempts,
		pattern.CreatedAt, nullTimeValue(pattern.LastMatched))
	if err != nil {
		return fmt.Errorf("failed to save email location pattern: %w", err)
	}
	return nil
}

func nullTimeValue(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
