package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsift/finsift/internal/learn"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/notify"
	"github.com/finsift/finsift/internal/testutil"
)

func smsMessage(body string) InboundMessage {
	return InboundMessage{
		UserID:    "user-1",
		Kind:      model.SourceSMS,
		Sender:    "VM-HDFCBK",
		Body:      body,
		Timestamp: time.Now(),
	}
}

func TestIngestCreatesPending(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.False(t, result.Duplicate)

	pending := result.Pending
	assert.True(t, pending.Candidate.Amount.Equal(decimal.NewFromInt(250)))
	assert.Equal(t, "Dominos", pending.Candidate.Merchant)
	assert.Equal(t, model.PaymentUPI, pending.Candidate.PaymentMethod)
	assert.Equal(t, model.StatusPending, pending.Status)
	assert.Equal(t, model.StrategyGenericParser, pending.Strategy)
	assert.InDelta(t, 0.9, pending.Confidence, 1e-9)
	assert.True(t, pending.ExpiresAt.After(time.Now().Add(6*24*time.Hour)), "default 7 day review window")

	// Persisted and retrievable.
	stored, err := store.GetPendingTransaction(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, pending.MessageHash, stored.MessageHash)
	assert.Equal(t, model.SourceSMS, stored.Source.Kind)
	assert.Equal(t, "VM-HDFCBK", stored.Source.SenderIdentifier())
}

func TestIngestDuplicateByMessageID(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	msg := smsMessage("Rs.250 spent at Dominos via UPI")
	msg.MessageID = "sms-001"

	first, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, first.Pending)

	second, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	require.NotNil(t, second.Existing)
	assert.Equal(t, first.Pending.ID, second.Existing.ID)

	// Only one record exists.
	pending, err := store.ListPendingByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIngestDuplicateByCompositeFingerprint(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	// Same amount, merchant, and day; no transport id on either delivery.
	first, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)
	require.NotNil(t, first.Pending)

	second, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI today"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate, "content identity at day granularity")
}

func TestIngestDifferentUsersDoNotCollide(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	msg := smsMessage("Rs.250 spent at Dominos via UPI")
	msg.MessageID = "sms-001"

	first, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, first.Pending)

	msg.UserID = "user-2"
	second, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	assert.False(t, second.Duplicate)
	require.NotNil(t, second.Pending)
}

func TestIngestRetainsFailedParse(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Thank you for visiting our branch today!"))
	require.NoError(t, err)
	require.NotNil(t, result.Pending)

	pending := result.Pending
	assert.Equal(t, model.StrategyFailed, pending.Strategy)
	assert.True(t, pending.NeedsManualReview)
	assert.InDelta(t, 0.1, pending.Confidence, 1e-9)
	assert.Equal(t, model.UnknownMerchant, pending.Candidate.Merchant)
	assert.Equal(t, "Thank you for visiting our branch today!", pending.RawContent)
}

func TestIngestRejectsEmptyUser(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)

	msg := smsMessage("Rs.100 debited")
	msg.UserID = ""
	_, err := eng.IngestMessage(context.Background(), msg)
	assert.Error(t, err)
}

func TestIngestBankSenderUsesBankStrategy(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, InboundMessage{
		UserID:    "user-1",
		Kind:      model.SourceEmail,
		Sender:    "alerts@hdfcbank.net",
		Subject:   "Debit alert",
		Body:      "Rs.450.00 has been debited from A/c XX5678 to VPA dominos@ybl Dominos Pizza on 12-03-25",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, model.StrategyBankPattern, result.Pending.Strategy)
	assert.Equal(t, "Dominos Pizza", result.Pending.Candidate.Merchant)
}

func TestIngestAppliesLearnedEmailPattern(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := New(store, nil)
	ctx := context.Background()

	sender := "receipts@coffeeclub.example"
	corrected := model.Candidate{
		Amount:        decimal.RequireFromString("349.00"),
		Currency:      "INR",
		Merchant:      "Coffee Club",
		Category:      "Food & Dining",
		PaymentMethod: model.PaymentCard,
		Type:          model.TypeExpense,
	}
	require.NoError(t, learn.NewEmailLearner(store).RecordCorrection(ctx, "user-1", sender, corrected))

	result, err := eng.IngestMessage(ctx, InboundMessage{
		UserID:    "user-1",
		Kind:      model.SourceEmail,
		Sender:    sender,
		Subject:   "Your receipt",
		Body:      "Thanks! Rs.349 paid to COFFEECLUB POS 9921",
		Timestamp: time.Now(),
	})
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, model.StrategyLearnedPattern, result.Pending.Strategy)
	assert.Equal(t, "Coffee Club", result.Pending.Candidate.Merchant)
	assert.Equal(t, "Food & Dining", result.Pending.Candidate.Category)
}

func TestIngestAutoCreatesAboveThreshold(t *testing.T) {
	store := testutil.SetupTestDB(t)
	eng := NewWithConfig(store, nil, Config{AutoCreateThreshold: 0.85})
	ctx := context.Background()

	result, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)
	assert.Nil(t, result.Pending)
	require.NotNil(t, result.Transaction)
	assert.Equal(t, "Dominos", result.Transaction.Merchant)

	// A re-delivery dedups against the materialized transaction.
	second, err := eng.IngestMessage(ctx, smsMessage("Rs.250 spent at Dominos via UPI"))
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	require.NotNil(t, second.Existing)
	assert.Equal(t, model.StatusApproved, second.Existing.Status)
}

func TestIngestSendsNotificationOnce(t *testing.T) {
	store := testutil.SetupTestDB(t)
	mock := notify.NewMockNotifier()
	eng := New(store, mock)
	ctx := context.Background()

	msg := smsMessage("Rs.250 spent at Dominos via UPI")
	msg.MessageID = "sms-001"
	msg.DeviceToken = "device-token-1"

	result, err := eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.Equal(t, 1, mock.Count())
	assert.Equal(t, result.Pending.ID, mock.Sent[0].Notification.Data["pendingId"])

	// Latch persisted.
	stored, err := store.GetPendingTransaction(ctx, result.Pending.ID)
	require.NoError(t, err)
	assert.True(t, stored.NotificationSent)

	// Duplicate delivery does not notify again.
	_, err = eng.IngestMessage(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, 1, mock.Count())
}

func TestIngestNotificationFailureDoesNotFailPipeline(t *testing.T) {
	store := testutil.SetupTestDB(t)
	mock := notify.NewMockNotifier()
	mock.FailWith = assert.AnError
	eng := New(store, mock)

	msg := smsMessage("Rs.250 spent at Dominos via UPI")
	msg.DeviceToken = "device-token-1"

	result, err := eng.IngestMessage(context.Background(), msg)
	require.NoError(t, err)
	require.NotNil(t, result.Pending)
	assert.False(t, result.Pending.NotificationSent)
}
