// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/finsift/finsift/internal/model"
)

// Storage defines the contract for our persistence layer. The
// (user, message hash) uniqueness guarantee for pending and final
// transactions is enforced here, by unique indexes, because multiple
// process instances may ingest concurrently.
type Storage interface {
	// Pending transaction operations.
	//
	// CreatePendingIfAbsent inserts a pending transaction unless one with
	// the same (user, hash) already exists, in which case it returns
	// common.ErrDuplicateEntry without modifying anything.
	CreatePendingIfAbsent(ctx context.Context, p *model.PendingTransaction) error
	GetPendingTransaction(ctx context.Context, id string) (*model.PendingTransaction, error)
	GetPendingByHash(ctx context.Context, userID, hash string) (*model.PendingTransaction, error)
	ListPendingByUser(ctx context.Context, userID string) ([]model.PendingTransaction, error)
	MarkNotificationSent(ctx context.Context, id string) error
	// ApprovePending atomically creates the transaction and flips the
	// pending record to approved. Returns common.ErrAlreadyProcessed if the
	// record is not in the pending state.
	ApprovePending(ctx context.Context, pendingID string, txn *model.Transaction, feedback string) error
	// RejectPending flips the record to rejected with an optional reason.
	// Returns common.ErrAlreadyProcessed if the record is not pending.
	RejectPending(ctx context.Context, pendingID, reason string) error
	// ExpirePendingBefore flips every pending record whose expiry has
	// passed to expired, returning how many changed. Idempotent.
	ExpirePendingBefore(ctx context.Context, now time.Time) (int64, error)

	// Transaction operations.
	SaveTransaction(ctx context.Context, txn *model.Transaction) error
	GetTransactionByID(ctx context.Context, id string) (*model.Transaction, error)
	GetTransactionByHash(ctx context.Context, userID, hash string) (*model.Transaction, error)
	ListTransactionsByUser(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	// Merchant pattern operations.
	GetMerchantPattern(ctx context.Context, userID, key string) (*model.MerchantPattern, error)
	ListMerchantPatterns(ctx context.Context, userID string) ([]model.MerchantPattern, error)
	SaveMerchantPattern(ctx context.Context, pattern *model.MerchantPattern) error

	// Merchant location operations.
	GetMerchantLocation(ctx context.Context, userID, key string) (*model.MerchantLocation, error)
	SaveMerchantLocation(ctx context.Context, loc *model.MerchantLocation) error

	// Email parsing pattern operations.
	//
	// GetEmailPatterns returns the user's own patterns for the sender plus
	// any global ones.
	GetEmailPatterns(ctx context.Context, userID, sender string) ([]model.EmailParsingPattern, error)
	// ListUserEmailPatterns returns all non-global patterns for a sender
	// across users, for the promotion scan.
	ListUserEmailPatterns(ctx context.Context, sender string) ([]model.EmailParsingPattern, error)
	// SaveEmailPattern upserts. Global patterns are keyed by sender alone
	// ("update if exists else insert") so concurrent promotions are safe.
	SaveEmailPattern(ctx context.Context, pattern *model.EmailParsingPattern) error

	// Email location pattern operations.
	GetEmailLocationPatterns(ctx context.Context, userID, sender string) ([]model.EmailLocationPattern, error)
	SaveEmailLocationPattern(ctx context.Context, pattern *model.EmailLocationPattern) error

	// Background location samples.
	RecordLocationSample(ctx context.Context, sample *model.LocationSample) error
	AverageLocationWithin(ctx context.Context, userID string, at time.Time, window time.Duration) (*AveragedLocation, error)

	// Database management.
	Migrate(ctx context.Context) error
	Close() error
}

// AveragedLocation is the mean of a user's background location samples
// inside a time window.
type AveragedLocation struct {
	Lat         float64
	Lng         float64
	SampleCount int
}

// Confidence saturates at 1.0 after 5 samples.
func (a *AveragedLocation) Confidence() float64 {
	conf := float64(a.SampleCount) / 5.0
	if conf > 1.0 {
		return 1.0
	}
	return conf
}

// Notification is a push payload delivered to the user's device.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Notifier delivers push notifications. Implementations must be
// time-bounded; failures are logged by the caller and never retried
// automatically.
type Notifier interface {
	Notify(ctx context.Context, deviceToken string, n Notification) error
}

// GeocodeResult is a resolved street address for a coordinate pair.
type GeocodeResult struct {
	Address   string
	City      string
	Country   string
	PlaceName string
}

// Geocoder resolves coordinates to addresses. Only invoked off the hot
// path, when rendering pending locations for review.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (*GeocodeResult, error)
}

// RetryOptions configures retry behavior for operations.
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
