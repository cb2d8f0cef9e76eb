package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PendingStatus tracks the review lifecycle of a parsed candidate.
type PendingStatus string

// Pending transaction states. Only StatusPending permits a transition;
// the other three are terminal.
const (
	StatusPending  PendingStatus = "pending"
	StatusApproved PendingStatus = "approved"
	StatusRejected PendingStatus = "rejected"
	StatusExpired  PendingStatus = "expired"
)

// ParseStrategy records which path produced the candidate.
type ParseStrategy string

// Parse strategy constants.
const (
	StrategyBankPattern    ParseStrategy = "bank-pattern"
	StrategyGenericParser  ParseStrategy = "generic-parser"
	StrategyLearnedPattern ParseStrategy = "learned-pattern"
	StrategyFailed         ParseStrategy = "failed"
)

// SourceKind discriminates message provenance variants.
type SourceKind string

// Source kind constants.
const (
	SourceSMS    SourceKind = "sms"
	SourceEmail  SourceKind = "email"
	SourceGmail  SourceKind = "gmail"
	SourceManual SourceKind = "manual"
)

// SMSSource carries SMS-specific provenance.
type SMSSource struct {
	Sender string
}

// EmailSource carries email-specific provenance, shared by forwarded email
// and Gmail sources.
type EmailSource struct {
	MessageID string
	Subject   string
	From      string
}

// Source is a tagged provenance variant: Kind is the discriminant, and
// exactly one payload pointer is set for non-manual kinds. Manual entries
// carry no payload.
type Source struct {
	Kind  SourceKind
	SMS   *SMSSource
	Email *EmailSource
}

// SenderIdentifier returns the sender for whichever variant is populated.
func (s Source) SenderIdentifier() string {
	switch s.Kind {
	case SourceSMS:
		if s.SMS != nil {
			return s.SMS.Sender
		}
	case SourceEmail, SourceGmail:
		if s.Email != nil {
			return s.Email.From
		}
	case SourceManual:
	}
	return ""
}

// DefaultPendingTTL is how long a pending transaction waits for review
// before the expiry sweep flips it to expired.
const DefaultPendingTTL = 7 * 24 * time.Hour

// PendingTransaction holds one Candidate snapshot awaiting user review.
type PendingTransaction struct {
	ID                    string
	UserID                string
	Candidate             Candidate
	Location              *Location // resolved at ingestion, materialized on approval
	Source                Source
	RawContent            string
	MessageDate           time.Time // timestamp of the underlying message
	Strategy              ParseStrategy
	Status                PendingStatus
	Confidence            float64
	MessageHash           string
	NotificationSent      bool
	NeedsManualReview     bool
	UserFeedback          string
	RejectionReason       string
	ApprovedTransactionID string
	CreatedAt             time.Time
	ExpiresAt             time.Time
	ProcessedAt           *time.Time
}

// IsTerminal reports whether the record has left the pending state.
func (p *PendingTransaction) IsTerminal() bool {
	return p.Status != StatusPending
}

// CorrectedData is a partial update over the Candidate schema supplied at
// approval time. Nil fields are unchanged; a non-nil field is an explicit
// correction, so "changed" is never inferred from zero values.
type CorrectedData struct {
	Amount        *decimal.Decimal
	Currency      *string
	Merchant      *string
	Category      *string
	SubCategory   *string
	PaymentMethod *PaymentMethod
	Type          *TransactionType
	Note          *string
}

// Empty reports whether no field was corrected.
func (c *CorrectedData) Empty() bool {
	if c == nil {
		return true
	}
	return c.Amount == nil && c.Currency == nil && c.Merchant == nil &&
		c.Category == nil && c.SubCategory == nil && c.PaymentMethod == nil &&
		c.Type == nil && c.Note == nil
}

// Apply overlays the corrections onto a copy of the candidate. Note is not
// a candidate field; it is carried onto the transaction at approval.
func (c *CorrectedData) Apply(base Candidate) Candidate {
	if c == nil {
		return base
	}
	if c.Amount != nil {
		base.Amount = *c.Amount
	}
	if c.Currency != nil {
		base.Currency = *c.Currency
	}
	if c.Merchant != nil {
		base.Merchant = *c.Merchant
	}
	if c.Category != nil {
		base.Category = *c.Category
	}
	if c.SubCategory != nil {
		base.SubCategory = *c.SubCategory
	}
	if c.PaymentMethod != nil {
		base.PaymentMethod = *c.PaymentMethod
	}
	if c.Type != nil {
		base.Type = *c.Type
	}
	return base
}
