package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// GlobalConfidenceCap bounds the confidence any global email pattern can
// reach regardless of how many users confirm it.
const GlobalConfidenceCap = 0.95

// EmailParsingPattern is a learned parsing correction for a specific email
// sender or sender domain. User-scoped patterns are created from individual
// corrections; once enough distinct users confirm the same correction the
// pattern is promoted to a shared global one.
type EmailParsingPattern struct {
	ID               string
	UserID           string // empty for global patterns
	Sender           string // sender address or domain
	Merchant         string
	Category         string
	PaymentMethod    PaymentMethod
	Type             TransactionType
	Amount           decimal.Decimal // amount observed in the confirming correction
	Confidence       float64
	IsGlobal         bool
	ConfirmedByUsers int
	CreatedAt        time.Time
	LastUpdated      time.Time
}

// Signature groups patterns that encode the same correction: identical
// amount, type, and merchant. Promotion counts distinct users per
// signature.
func (p *EmailParsingPattern) Signature() string {
	return p.Amount.StringFixed(2) + "|" + string(p.Type) + "|" + p.Merchant
}

// GlobalConfidence computes the confidence of a promoted pattern from the
// number of distinct confirming users.
func GlobalConfidence(distinctUsers int) float64 {
	conf := 0.7 + 0.05*float64(distinctUsers)
	if conf > GlobalConfidenceCap {
		return GlobalConfidenceCap
	}
	return conf
}

// EmailLocationPattern is a learned text pattern that indicates a location
// inside an email body from a given sender (optionally narrowed to a
// merchant). Success/failure counters drive its confidence.
type EmailLocationPattern struct {
	ID          string
	UserID      string
	Sender      string
	Merchant    string // optional narrowing
	Pattern     string // regex tested against the raw email text
	Location    Location
	Successes   int
	Attempts    int
	CreatedAt   time.Time
	LastMatched time.Time
}

// Confidence is the success ratio over all attempts.
func (p *EmailLocationPattern) Confidence() float64 {
	if p.Attempts == 0 {
		return 0
	}
	return float64(p.Successes) / float64(p.Attempts)
}
