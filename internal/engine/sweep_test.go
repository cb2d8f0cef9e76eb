package engine

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/testutil"
)

func overduePending(userID string, expiredAgo time.Duration) *model.PendingTransaction {
	return &model.PendingTransaction{
		ID:     uuid.NewString(),
		UserID: userID,
		Candidate: model.Candidate{
			Amount:   decimal.NewFromInt(100),
			Currency: "INR",
			Merchant: "Dominos",
			Type:     model.TypeExpense,
		},
		Source:      model.Source{Kind: model.SourceSMS, SMS: &model.SMSSource{Sender: "VM-TEST"}},
		Status:      model.StatusPending,
		MessageHash: uuid.NewString(),
		MessageDate: time.Now().Add(-8 * 24 * time.Hour),
		CreatedAt:   time.Now().Add(-8 * 24 * time.Hour),
		ExpiresAt:   time.Now().Add(-expiredAgo),
	}
}

func TestExpirePendingFlipsOverdueRecords(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	overdue := overduePending("user-1", time.Hour)
	require.NoError(t, store.CreatePendingIfAbsent(ctx, overdue))

	// A fresh record must survive the sweep.
	fresh, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	count, err := eng.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	expired, err := store.GetPendingTransaction(ctx, overdue.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusExpired, expired.Status)
	require.NotNil(t, expired.ProcessedAt)

	kept, err := store.GetPendingTransaction(ctx, fresh.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, kept.Status)
}

func TestExpirePendingIsIdempotent(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	require.NoError(t, store.CreatePendingIfAbsent(ctx, overduePending("user-1", time.Hour)))

	count, err := eng.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = eng.ExpirePending(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestExpiredRecordCannotBeApproved(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	overdue := overduePending("user-1", time.Hour)
	require.NoError(t, store.CreatePendingIfAbsent(ctx, overdue))

	_, err := eng.ExpirePending(ctx)
	require.NoError(t, err)

	_, err = eng.Approve(ctx, overdue.ID, nil)
	assert.ErrorIs(t, err, common.ErrAlreadyProcessed)
}
