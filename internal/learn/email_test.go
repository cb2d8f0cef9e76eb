package learn

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/testutil"
)

const testSender = "receipts@coffeeclub.example"

func correction(merchant string) model.Candidate {
	return model.Candidate{
		Amount:        decimal.RequireFromString("349.00"),
		Currency:      "INR",
		Merchant:      merchant,
		Category:      "Food & Dining",
		PaymentMethod: model.PaymentCard,
		Type:          model.TypeExpense,
	}
}

func TestRecordCorrectionCreatesUserPattern(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	require.NoError(t, learner.RecordCorrection(ctx, "user-1", testSender, correction("Coffee Club")))

	patterns, err := learner.Lookup(ctx, "user-1", testSender)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Coffee Club", patterns[0].Merchant)
	assert.False(t, patterns[0].IsGlobal)
	assert.InDelta(t, 0.7, patterns[0].Confidence, 1e-9)
}

func TestPromotionAfterThreeDistinctUsers(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	for _, user := range []string{"user-1", "user-2"} {
		require.NoError(t, learner.RecordCorrection(ctx, user, testSender, correction("Coffee Club")))
	}

	// Two users is not enough.
	patterns, err := learner.Lookup(ctx, "user-9", testSender)
	require.NoError(t, err)
	assert.Empty(t, patterns, "no global pattern yet, and user-9 has none of their own")

	require.NoError(t, learner.RecordCorrection(ctx, "user-3", testSender, correction("Coffee Club")))

	patterns, err = learner.Lookup(ctx, "user-9", testSender)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.True(t, patterns[0].IsGlobal)
	assert.Equal(t, 3, patterns[0].ConfirmedByUsers)
	assert.InDelta(t, 0.85, patterns[0].Confidence, 1e-9)
}

func TestPromotionRequiresDistinctUsers(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	// Same user confirming three times must not promote.
	for i := 0; i < 3; i++ {
		require.NoError(t, learner.RecordCorrection(ctx, "user-1", testSender, correction("Coffee Club")))
	}

	patterns, err := learner.Lookup(ctx, "user-9", testSender)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestPromotionRequiresMatchingSignature(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	require.NoError(t, learner.RecordCorrection(ctx, "user-1", testSender, correction("Coffee Club")))
	require.NoError(t, learner.RecordCorrection(ctx, "user-2", testSender, correction("Coffee Club")))
	// Different merchant means a different signature.
	require.NoError(t, learner.RecordCorrection(ctx, "user-3", testSender, correction("Tea House")))

	patterns, err := learner.Lookup(ctx, "user-9", testSender)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestPromotionConfidenceGrowsWithUsers(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	users := []string{"u1", "u2", "u3", "u4", "u5"}
	for _, user := range users {
		require.NoError(t, learner.RecordCorrection(ctx, user, testSender, correction("Coffee Club")))
	}

	best, err := learner.Best(ctx, "u9", testSender)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.True(t, best.IsGlobal)
	assert.Equal(t, 5, best.ConfirmedByUsers)
	// min(0.95, 0.7 + 0.05*5)
	assert.InDelta(t, 0.95, best.Confidence, 1e-9)
}

func TestLookupRanksUserPatternsFirst(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)
	ctx := context.Background()

	// Promote a global pattern via three users.
	for _, user := range []string{"u1", "u2", "u3"} {
		require.NoError(t, learner.RecordCorrection(ctx, user, testSender, correction("Coffee Club")))
	}

	// u1's own pattern (0.7) outranks the global one (0.85) in their view.
	patterns, err := learner.Lookup(ctx, "u1", testSender)
	require.NoError(t, err)
	require.NotEmpty(t, patterns)
	assert.False(t, patterns[0].IsGlobal)

	best, err := learner.Best(ctx, "u1", testSender)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.False(t, best.IsGlobal)
}

func TestBestReturnsNilWithoutPatterns(t *testing.T) {
	store := testutil.SetupTestDB(t)
	learner := NewEmailLearner(store)

	best, err := learner.Best(context.Background(), "user-1", "nobody@example.com")
	require.NoError(t, err)
	assert.Nil(t, best)
}
