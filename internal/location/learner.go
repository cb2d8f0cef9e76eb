package location

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/learn"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

// Learner updates the location learning stores from confirmed
// transactions.
type Learner struct {
	storage service.Storage
}

// NewLearner creates a location learner backed by the given storage.
func NewLearner(storage service.Storage) *Learner {
	return &Learner{storage: storage}
}

// RecordVisit folds a GPS-bearing transaction into the merchant's learned
// location, creating it on the first visit.
func (l *Learner) RecordVisit(ctx context.Context, userID, merchant string, gps model.GeoPoint, at time.Time) error {
	key := learn.NormalizeMerchant(merchant)
	if key == "" {
		return nil
	}

	loc, err := l.storage.GetMerchantLocation(ctx, userID, key)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to load merchant location: %w", err)
	}
	if loc == nil {
		loc = &model.MerchantLocation{
			UserID:        userID,
			Key:           key,
			CanonicalName: merchant,
		}
	}

	loc.AddVisit(gps, at)

	if err := l.storage.SaveMerchantLocation(ctx, loc); err != nil {
		return fmt.Errorf("failed to save merchant location: %w", err)
	}
	return nil
}

// LearnEmailPattern stores a text pattern observed to carry a location in
// an email from the given sender, so future emails resolve without
// geocoding. The fragment is matched literally; the pattern starts with
// one successful attempt.
func (l *Learner) LearnEmailPattern(ctx context.Context, userID, sender, merchant, fragment string, loc model.Location) error {
	if sender == "" || fragment == "" {
		return nil
	}

	pattern := &model.EmailLocationPattern{
		ID:          uuid.NewString(),
		UserID:      userID,
		Sender:      sender,
		Merchant:    merchant,
		Pattern:     regexp.QuoteMeta(fragment),
		Location:    loc,
		Successes:   1,
		Attempts:    1,
		CreatedAt:   time.Now(),
		LastMatched: time.Now(),
	}
	if err := l.storage.SaveEmailLocationPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save email location pattern: %w", err)
	}
	return nil
}
