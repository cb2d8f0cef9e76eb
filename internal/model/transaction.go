package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// LocationSource identifies which strategy produced a location.
type LocationSource string

// Location source constants, in descending trust order.
const (
	LocationFromGPS             LocationSource = "gps"
	LocationFromMerchantHistory LocationSource = "merchant_history"
	LocationFromBackground      LocationSource = "background"
	LocationFromEmailPattern    LocationSource = "email_pattern"
	LocationFromTextHint        LocationSource = "text_hint"
)

// Location is a resolved geographic location attached to a transaction.
type Location struct {
	Lat            float64
	Lng            float64
	Address        string
	City           string
	Country        string
	PlaceName      string
	Confidence     float64
	Source         LocationSource
	NeedsGeocoding bool // text hint awaiting reverse geocoding
}

// Transaction is a materialized financial record. It is created only by
// approving a PendingTransaction or by direct high-confidence ingestion,
// and never mutated afterwards except by explicit user edit.
type Transaction struct {
	ID            string
	UserID        string
	Amount        decimal.Decimal // always non-negative; see Type
	Currency      string
	Type          TransactionType
	Category      string
	SubCategory   string
	Merchant      string
	Note          string
	PaymentMethod PaymentMethod
	Source        Source
	Tags          []string
	Location      *Location
	Date          time.Time
	MessageHash   string // dedup fingerprint, unique per user
	CreatedAt     time.Time
}

// FingerprintMessage builds a dedup fingerprint from a stable transport
// message id (Gmail message id, or email timestamp+tag).
func FingerprintMessage(userID, messageID string) string {
	hash := sha256.Sum256([]byte(userID + ":" + messageID))
	return fmt.Sprintf("%x", hash)
}

// FingerprintComposite builds a dedup fingerprint from message content when
// no stable transport id exists. Date is truncated to day granularity so a
// re-delivered notification hashes identically.
func FingerprintComposite(userID string, amount decimal.Decimal, merchant string, date time.Time) string {
	data := fmt.Sprintf("%s:%s:%s:%s",
		userID,
		amount.StringFixed(2),
		merchant,
		date.Format("2006-01-02"))
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
