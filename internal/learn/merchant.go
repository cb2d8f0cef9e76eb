package learn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

// SuggestionConfidenceThreshold gates category and payment-method
// suggestions; the canonical merchant name is offered unconditionally.
const SuggestionConfidenceThreshold = 0.6

// MerchantLearner maintains per-user merchant patterns from approval
// feedback and answers fuzzy lookups and suggestions.
type MerchantLearner struct {
	storage service.Storage
}

// NewMerchantLearner creates a learner backed by the given storage.
func NewMerchantLearner(storage service.Storage) *MerchantLearner {
	return &MerchantLearner{storage: storage}
}

// RecordApproval updates the merchant pattern after a transaction is
// approved. parsed is the candidate as originally extracted; final carries
// the possibly user-corrected values. Called on every approval, not just
// corrected ones, so variation counts keep growing.
func (l *MerchantLearner) RecordApproval(ctx context.Context, userID string, parsed model.Candidate, final model.Candidate) error {
	merchant := final.Merchant
	if merchant == "" {
		merchant = parsed.Merchant
	}
	if merchant == "" || merchant == model.UnknownMerchant {
		return nil
	}

	key := NormalizeMerchant(merchant)
	if key == "" {
		return nil
	}

	pattern, err := l.storage.GetMerchantPattern(ctx, userID, key)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("failed to load merchant pattern: %w", err)
	}
	if pattern == nil {
		pattern = &model.MerchantPattern{
			UserID:        userID,
			Key:           key,
			CanonicalName: merchant,
		}
	}

	pattern.RecordVariation(parsed.Merchant)
	pattern.UseCount++
	pattern.LastUpdated = time.Now()

	now := time.Now()
	if final.Category != "" && final.Category != parsed.Category {
		pattern.Category.Record(parsed.Category, final.Category, now)
	}
	if final.PaymentMethod != "" && final.PaymentMethod != parsed.PaymentMethod {
		pattern.Payment.Record(string(parsed.PaymentMethod), string(final.PaymentMethod), now)
	}

	if err := l.storage.SaveMerchantPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save merchant pattern: %w", err)
	}
	return nil
}

// FindPattern looks up the pattern for a merchant string: exact key match
// first, then exact variation match, then fuzzy similarity against
// canonical names and all variations across the user's patterns, accepting
// the best match at or above the similarity threshold.
func (l *MerchantLearner) FindPattern(ctx context.Context, userID, merchant string) (*model.MerchantPattern, error) {
	key := NormalizeMerchant(merchant)
	if key == "" {
		return nil, common.ErrNotFound
	}

	pattern, err := l.storage.GetMerchantPattern(ctx, userID, key)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if pattern != nil {
		return pattern, nil
	}

	patterns, err := l.storage.ListMerchantPatterns(ctx, userID)
	if err != nil {
		return nil, err
	}

	// Exact variation match before anything fuzzy.
	for i := range patterns {
		for variation := range patterns[i].Variations {
			if NormalizeMerchant(variation) == key {
				return &patterns[i], nil
			}
		}
	}

	var best *model.MerchantPattern
	bestSim := 0.0
	for i := range patterns {
		sim := Similarity(merchant, patterns[i].CanonicalName)
		for variation := range patterns[i].Variations {
			if s := Similarity(merchant, variation); s > sim {
				sim = s
			}
		}
		if sim > bestSim {
			bestSim = sim
			best = &patterns[i]
		}
	}

	if best == nil || bestSim < SimilarityThreshold {
		return nil, common.ErrNotFound
	}
	return best, nil
}

// Suggestions is what the learner can offer for a freshly parsed
// candidate.
type Suggestions struct {
	CanonicalMerchant string
	Category          string // empty unless confidence cleared the threshold
	PaymentMethod     model.PaymentMethod
}

// Suggest looks up the candidate's merchant pattern and returns the
// canonical name unconditionally, and category/payment-method preferences
// only when their confidence is at least the suggestion threshold.
func (l *MerchantLearner) Suggest(ctx context.Context, userID string, candidate model.Candidate) (*Suggestions, error) {
	pattern, err := l.FindPattern(ctx, userID, candidate.Merchant)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	s := &Suggestions{CanonicalMerchant: pattern.CanonicalName}
	if pattern.Category.Value != "" && pattern.Category.Confidence >= SuggestionConfidenceThreshold {
		s.Category = pattern.Category.Value
	}
	if pattern.Payment.Value != "" && pattern.Payment.Confidence >= SuggestionConfidenceThreshold {
		s.PaymentMethod = model.PaymentMethod(pattern.Payment.Value)
	}
	return s, nil
}
