package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

// GetMerchantPattern retrieves a pattern by its normalized merchant key.
func (s *SQLiteStorage) GetMerchantPattern(ctx context.Context, userID, key string) (*model.MerchantPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}
	if err := validateString(key, "key"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, key, canonical_name, variations_json, category_json,
		       payment_json, use_count, last_updated
		FROM merchant_patterns
		WHERE user_id = ? AND key = ?
	`, userID, key)
	return scanMerchantPattern(row)
}

// ListMerchantPatterns returns all of a user's merchant patterns, needed
// by fuzzy lookup.
func (s *SQLiteStorage) ListMerchantPatterns(ctx context.Context, userID string) ([]model.MerchantPattern, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, key, canonical_name, variations_json, category_json,
		       payment_json, use_count, last_updated
		FROM merchant_patterns
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list merchant patterns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []model.MerchantPattern
	for rows.Next() {
		p, err := scanMerchantPattern(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}

// SaveMerchantPattern upserts a merchant pattern by (user, key).
func (s *SQLiteStorage) SaveMerchantPattern(ctx context.Context, pattern *model.MerchantPattern) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateMerchantPattern(pattern); err != nil {
		return err
	}

	if pattern.LastUpdated.IsZero() {
		pattern.LastUpdated = time.Now()
	}

	variationsJSON, err := json.Marshal(pattern.Variations)
	if err != nil {
		return fmt.Errorf("failed to marshal variations: %w", err)
	}
	categoryJSON, err := json.Marshal(pattern.Category)
	if err != nil {
		return fmt.Errorf("failed to marshal category preference: %w", err)
	}
	paymentJSON, err := json.Marshal(pattern.Payment)
	if err != nil {
		return fmt.Errorf("failed to marshal payment preference: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO merchant_patterns
			(user_id, key, canonical_name, variations_json, category_json, payment_json, use_count, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, key) DO UPDATE SET
			canonical_name = excluded.canonical_name,
			variations_json = excluded.variations_json,
			category_json = excluded.category_json,
			payment_json = excluded.payment_json,
			use_count = excluded.use_count,
			last_updated = excluded.last_updated
	`, pattern.UserID, pattern.Key, pattern.CanonicalName, string(variationsJSON),
		string(categoryJSON), string(paymentJSON), pattern.UseCount, pattern.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save merchant pattern: %w", err)
	}
	return nil
}

func scanMerchantPattern(row rowScanner) (*model.MerchantPattern, error) {
	var (
		p                                     model.MerchantPattern
		variationsJSON, categoryJSON, payJSON sql.NullString
	)

	err := row.Scan(&p.UserID, &p.Key, &p.CanonicalName, &variationsJSON,
		&categoryJSON, &payJSON, &p.UseCount, &p.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: merchant pattern", common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan merchant pattern: %w", err)
	}

	if variationsJSON.Valid && variationsJSON.String != "" {
		if err := json.Unmarshal([]byte(variationsJSON.String), &p.Variations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variations: %w", err)
		}
	}
	if categoryJSON.Valid && categoryJSON.String != "" {
		if err := json.Unmarshal([]byte(categoryJSON.String), &p.Category); err != nil {
			return nil, fmt.Errorf("failed to unmarshal category preference: %w", err)
		}
	}
	if payJSON.Valid && payJSON.String != "" {
		if err := json.Unmarshal([]byte(payJSON.String), &p.Payment); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment preference: %w", err)
		}
	}
	return &p, nil
}
