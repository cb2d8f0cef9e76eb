package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/finsift/finsift/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidPending     = errors.New("invalid pending transaction")
	ErrInvalidPattern     = errors.New("invalid pattern")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validatePending validates a pending transaction before insert.
func validatePending(p *model.PendingTransaction) error {
	if p == nil {
		return fmt.Errorf("%w: pending transaction", ErrNilParameter)
	}
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidPending)
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidPending)
	}
	if p.MessageHash == "" {
		return fmt.Errorf("%w: missing message hash", ErrInvalidPending)
	}
	return nil
}

// validateTransaction validates a transaction before insert.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTransaction)
	}
	if txn.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidTransaction)
	}
	if txn.MessageHash == "" {
		return fmt.Errorf("%w: missing message hash", ErrInvalidTransaction)
	}
	if txn.Amount.IsNegative() {
		return fmt.Errorf("%w: negative amount; direction belongs in type", ErrInvalidTransaction)
	}
	return nil
}

// validateMerchantPattern validates a merchant pattern before upsert.
func validateMerchantPattern(p *model.MerchantPattern) error {
	if p == nil {
		return fmt.Errorf("%w: merchant pattern", ErrNilParameter)
	}
	if p.UserID == "" || p.Key == "" {
		return fmt.Errorf("%w: merchant pattern requires user id and key", ErrInvalidPattern)
	}
	return nil
}
