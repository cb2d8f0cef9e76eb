package learn

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

// Lookup thresholds: user-specific patterns apply at a lower bar than
// shared global ones.
const (
	userPatternThreshold   = 0.6
	globalPatternThreshold = 0.7
)

// initialPatternConfidence is assigned to a fresh user-scoped pattern
// created from a single correction.
const initialPatternConfidence = 0.7

// promotionMinUsers is how many distinct users must confirm the same
// correction signature before a pattern goes global.
const promotionMinUsers = 3

// EmailLearner records per-sender parsing corrections and promotes them to
// global patterns once enough independent users agree.
type EmailLearner struct {
	storage service.Storage
}

// NewEmailLearner creates a learner backed by the given storage.
func NewEmailLearner(storage service.Storage) *EmailLearner {
	return &EmailLearner{storage: storage}
}

// RecordCorrection stores a user-scoped pattern for the sender from an
// email-source correction, then runs the promotion scan for that sender.
func (l *EmailLearner) RecordCorrection(ctx context.Context, userID, sender string, corrected model.Candidate) error {
	if sender == "" {
		return nil
	}

	pattern := &model.EmailParsingPattern{
		ID:            uuid.NewString(),
		UserID:        userID,
		Sender:        sender,
		Merchant:      corrected.Merchant,
		Category:      corrected.Category,
		PaymentMethod: corrected.PaymentMethod,
		Type:          corrected.Type,
		Amount:        corrected.Amount,
		Confidence:    initialPatternConfidence,
		CreatedAt:     time.Now(),
		LastUpdated:   time.Now(),
	}
	if err := l.storage.SaveEmailPattern(ctx, pattern); err != nil {
		return fmt.Errorf("failed to save email pattern: %w", err)
	}

	return l.promote(ctx, sender)
}

// promote scans all non-global patterns for the sender, groups them by
// correction signature, and creates or refreshes a single global pattern
// when a group spans enough distinct users. The storage upsert is
// "update if exists else insert" keyed by sender, so concurrent
// promotions are safe.
func (l *EmailLearner) promote(ctx context.Context, sender string) error {
	patterns, err := l.storage.ListUserEmailPatterns(ctx, sender)
	if err != nil {
		return fmt.Errorf("failed to scan patterns for promotion: %w", err)
	}

	usersBySignature := make(map[string]map[string]bool)
	sample := make(map[string]model.EmailParsingPattern)
	for _, p := range patterns {
		// Fresh corrections enter at exactly 0.7 and must count toward
		// promotion, so the band is inclusive.
		if p.Confidence < initialPatternConfidence {
			continue
		}
		sig := p.Signature()
		if usersBySignature[sig] == nil {
			usersBySignature[sig] = make(map[string]bool)
			sample[sig] = p
		}
		usersBySignature[sig][p.UserID] = true
	}

	for sig, users := range usersBySignature {
		if len(users) < promotionMinUsers {
			continue
		}
		src := sample[sig]
		global := &model.EmailParsingPattern{
			ID:               uuid.NewString(),
			Sender:           sender,
			Merchant:         src.Merchant,
			Category:         src.Category,
			PaymentMethod:    src.PaymentMethod,
			Type:             src.Type,
			Amount:           src.Amount,
			Confidence:       model.GlobalConfidence(len(users)),
			IsGlobal:         true,
			ConfirmedByUsers: len(users),
			CreatedAt:        time.Now(),
			LastUpdated:      time.Now(),
		}
		if err := l.storage.SaveEmailPattern(ctx, global); err != nil {
			return fmt.Errorf("failed to save global pattern: %w", err)
		}
	}
	return nil
}

// Lookup returns the applicable patterns for a sender: the user's own
// patterns at confidence >= 0.6 ranked first, then global patterns at the
// stricter >= 0.7 bar.
func (l *EmailLearner) Lookup(ctx context.Context, userID, sender string) ([]model.EmailParsingPattern, error) {
	patterns, err := l.storage.GetEmailPatterns(ctx, userID, sender)
	if err != nil {
		return nil, err
	}

	var user, global []model.EmailParsingPattern
	for _, p := range patterns {
		if p.IsGlobal {
			if p.Confidence >= globalPatternThreshold {
				global = append(global, p)
			}
		} else if p.Confidence >= userPatternThreshold {
			user = append(user, p)
		}
	}

	sort.SliceStable(user, func(i, j int) bool { return user[i].Confidence > user[j].Confidence })
	sort.SliceStable(global, func(i, j int) bool { return global[i].Confidence > global[j].Confidence })

	return append(user, global...), nil
}

// Best returns the highest-ranked applicable pattern, or nil.
func (l *EmailLearner) Best(ctx context.Context, userID, sender string) (*model.EmailParsingPattern, error) {
	patterns, err := l.Lookup(ctx, userID, sender)
	if err != nil || len(patterns) == 0 {
		return nil, err
	}
	return &patterns[0], nil
}
