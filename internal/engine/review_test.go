package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/learn"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/testutil"
)

func TestApproveAsParsed(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	txn, err := eng.Approve(ctx, result.Pending.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "Dominos", txn.Merchant)
	assert.Equal(t, result.Pending.MessageHash, txn.MessageHash)

	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusApproved, stored.Status)
	assert.Equal(t, txn.ID, stored.ApprovedTransactionID)
	assert.Equal(t, "approved", stored.UserFeedback)
	require.NotNil(t, stored.ProcessedAt)

	saved, err := store.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.True(t, saved.Amount.Equal(txn.Amount))
}

func TestApproveWithCorrections(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at DOMINOS*4821 via UPI"))
	require.NoError(t, err)

	merchant := "Dominos"
	category := "Food & Dining"
	txn, err := eng.Approve(ctx, result.Pending.ID, &model.CorrectedData{
		Merchant: &merchant,
		Category: &category,
	})
	require.NoError(t, err)
	assert.Equal(t, "Dominos", txn.Merchant)
	assert.Equal(t, "Food & Dining", txn.Category)

	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved with corrections", stored.UserFeedback)

	// The correction taught the merchant learner: the next parse of the
	// raw variant resolves to the canonical name.
	pattern, err := learn.NewMerchantLearner(store).FindPattern(ctx, "user-1", "DOMINOS*4821")
	require.NoError(t, err)
	assert.Equal(t, "Dominos", pattern.CanonicalName)
}

func TestApproveNotePersistedOnTransaction(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	note := "team lunch"
	txn, err := eng.Approve(ctx, result.Pending.ID, &model.CorrectedData{Note: &note})
	require.NoError(t, err)
	assert.Equal(t, "team lunch", txn.Note)

	saved, err := store.GetTransactionByID(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, "team lunch", saved.Note)

	// A note alone is not a parse correction.
	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", stored.UserFeedback)
}

func TestApproveRestatingParsedValuesIsPlainApproval(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	merchant := result.Pending.Candidate.Merchant
	_, err = eng.Approve(ctx, result.Pending.ID, &model.CorrectedData{Merchant: &merchant})
	require.NoError(t, err)

	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, "approved", stored.UserFeedback)
}

func TestApproveTwiceIsRejected(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	_, err = eng.Approve(ctx, result.Pending.ID, nil)
	require.NoError(t, err)

	_, err = eng.Approve(ctx, result.Pending.ID, nil)
	assert.ErrorIs(t, err, common.ErrAlreadyProcessed)

	// Still exactly one transaction.
	txns, err := store.ListTransactionsByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Len(t, txns, 1)
}

func TestApproveUnknownPending(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)

	_, err := eng.Approve(context.Background(), "no-such-id", nil)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestRejectThenApproveFails(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	require.NoError(t, eng.Reject(ctx, result.Pending.ID, "not my transaction"))

	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusRejected, stored.Status)
	assert.Equal(t, "not my transaction", stored.RejectionReason)

	_, err = eng.Approve(ctx, result.Pending.ID, nil)
	assert.ErrorIs(t, err, common.ErrAlreadyProcessed)

	// Rejection leaves no transaction behind.
	txns, err := store.ListTransactionsByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	assert.Empty(t, txns)
}

func TestCorrectedEmailApprovalTeachesEmailLearner(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	sender := "receipts@coffeeclub.example"
	result, err := eng.IngestMessage(ctx, InboundMessage{
		UserID:    "user-1",
		Kind:      model.SourceEmail,
		Sender:    sender,
		Subject:   "Your receipt",
		Body:      "Rs.349 paid to COFFEECLUB POS 9921",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)

	merchant := "Coffee Club"
	_, err = eng.Approve(ctx, result.Pending.ID, &model.CorrectedData{Merchant: &merchant})
	require.NoError(t, err)

	patterns, err := learn.NewEmailLearner(store).Lookup(ctx, "user-1", sender)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "Coffee Club", patterns[0].Merchant)
}

func TestUncorrectedSMSApprovalDoesNotTouchEmailLearner(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)

	_, err = eng.Approve(ctx, result.Pending.ID, nil)
	require.NoError(t, err)

	patterns, err := learn.NewEmailLearner(store).Lookup(ctx, "user-1", "VM-HDFCBK")
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestApproveGPSLocationTeachesMerchantLocation(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	msg := smsMessage("Rs.250 spent at Dominos via UPI")
	msg.GPSHint = &model.GeoPoint{Lat: 12.9716, Lng: 77.5946}

	result, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, result.Pending.Location)
	assert.Equal(t, model.LocationFromGPS, result.Pending.Location.Source)

	_, err = eng.Approve(ctx, result.Pending.ID, nil)
	require.NoError(t, err)

	loc, err := store.GetMerchantLocation(ctx, "user-1", "dominos")
	require.NoError(t, err)
	assert.Equal(t, 1, loc.VisitCount)
	assert.InDelta(t, 12.9716, loc.Lat, 1e-9)
}
