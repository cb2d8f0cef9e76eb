// Package model defines the core domain models used throughout the application.
package model

import (
	"github.com/shopspring/decimal"
)

// TransactionType indicates the direction of money movement.
type TransactionType string

// Transaction type constants.
const (
	TypeExpense TransactionType = "expense"
	TypeIncome  TransactionType = "income"
)

// PaymentMethod identifies how a transaction was paid.
type PaymentMethod string

// Payment method constants.
const (
	PaymentCash       PaymentMethod = "cash"
	PaymentCard       PaymentMethod = "card"
	PaymentUPI        PaymentMethod = "upi"
	PaymentWallet     PaymentMethod = "wallet"
	PaymentNetBanking PaymentMethod = "netbanking"
	PaymentOther      PaymentMethod = "other"
)

// DefaultCategory is assigned when no classifier rule matches.
const DefaultCategory = "General Expense"

// UnknownMerchant is assigned when no merchant could be extracted.
const UnknownMerchant = "Unknown"

// GeoPoint is a latitude/longitude pair.
type GeoPoint struct {
	Lat float64
	Lng float64
}

// Candidate is an unpersisted transaction guess produced by parsing a raw
// bank notification. Amounts are always non-negative; direction lives in
// Type. Candidates are snapshotted into a PendingTransaction and never
// stored on their own.
type Candidate struct {
	Amount        decimal.Decimal
	Currency      string
	Merchant      string
	Category      string
	SubCategory   string
	PaymentMethod PaymentMethod
	Type          TransactionType
	AccountRef    string // masked account digits, if present in the message
	BalanceSeen   bool   // message mentioned a running balance
	GPS           *GeoPoint
	Confidence    float64
}

// SignedAmount returns the amount with income negated, for callers that
// want a single signed number instead of amount+type.
func (c *Candidate) SignedAmount() decimal.Decimal {
	if c.Type == TypeIncome {
		return c.Amount.Neg()
	}
	return c.Amount
}

// HasMerchant reports whether a merchant was actually extracted rather than
// defaulted.
func (c *Candidate) HasMerchant() bool {
	return c.Merchant != "" && c.Merchant != UnknownMerchant
}
