// Package engine orchestrates the ingestion pipeline: parsing,
// deduplication, location matching, confidence scoring, and the
// pending-transaction review workflow.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/learn"
	"github.com/finsift/finsift/internal/location"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/parse"
	"github.com/finsift/finsift/internal/service"
)

// failedParseConfidence is assigned to retained unparseable messages so
// they sort to the bottom of the review queue.
const failedParseConfidence = 0.1

// Config holds configuration options for the ingestion engine.
type Config struct {
	// PendingTTL is how long pending transactions wait for review.
	PendingTTL time.Duration
	// AutoCreateThreshold, when > 0, materializes a transaction directly
	// (skipping review) once its confidence reaches the threshold.
	AutoCreateThreshold float64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		PendingTTL:          model.DefaultPendingTTL,
		AutoCreateThreshold: 0, // review everything by default
	}
}

// Engine runs inbound messages through the full pipeline.
type Engine struct {
	storage         service.Storage
	parser          *parse.Parser
	banks           *parse.BankRegistry
	merchantLearner *learn.MerchantLearner
	emailLearner    *learn.EmailLearner
	locations       *location.Matcher
	locationLearner *location.Learner
	notifier        service.Notifier
	config          Config
}

// New creates an engine with the default configuration. notifier may be
// nil, in which case no push notifications are attempted.
func New(storage service.Storage, notifier service.Notifier) *Engine {
	return NewWithConfig(storage, notifier, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(storage service.Storage, notifier service.Notifier, config Config) *Engine {
	if config.PendingTTL <= 0 {
		config.PendingTTL = model.DefaultPendingTTL
	}
	classifier := parse.NewClassifier()
	return &Engine{
		storage:         storage,
		parser:          parse.NewParser(classifier),
		banks:           parse.NewBankRegistry(classifier),
		merchantLearner: learn.NewMerchantLearner(storage),
		emailLearner:    learn.NewEmailLearner(storage),
		locations:       location.NewMatcher(storage),
		locationLearner: location.NewLearner(storage),
		notifier:        notifier,
		config:          config,
	}
}

// InboundMessage is one delivery from an SMS webhook, the Gmail poller, or
// a forwarded-email poller.
type InboundMessage struct {
	UserID      string
	Kind        model.SourceKind
	Sender      string
	MessageID   string // stable transport id, if any
	Subject     string
	Body        string
	Timestamp   time.Time
	GPSHint     *model.GeoPoint
	DeviceToken string // push target; empty disables notification
}

// IngestResult is the outcome of processing one inbound message.
type IngestResult struct {
	// Duplicate is set when the message hashed to an existing record;
	// Existing then points at it and nothing was created.
	Duplicate bool
	Existing  *model.PendingTransaction
	// Pending is the created review record, nil when the candidate was
	// auto-materialized.
	Pending *model.PendingTransaction
	// Transaction is set only on direct high-confidence materialization.
	Transaction *model.Transaction
}

// IngestMessage runs one message through the pipeline. Only persistence
// failures for the pending/transaction writes themselves are returned;
// every collaborator failure degrades gracefully.
func (e *Engine) IngestMessage(ctx context.Context, msg InboundMessage) (*IngestResult, error) {
	if msg.UserID == "" {
		return nil, fmt.Errorf("%w: userId", common.ErrInvalidConfig)
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	rawText := msg.Body
	if msg.Subject != "" {
		rawText = msg.Subject + "\n" + msg.Body
	}

	candidate, strategy := e.parseMessage(ctx, msg, rawText)

	hash := e.fingerprint(msg, candidate, rawText)

	// Dedup gate. The unique index on (user, hash) is the real guarantee;
	// this lookup just gives callers the existing record.
	if existing, err := e.findExisting(ctx, msg.UserID, hash); err != nil {
		return nil, err
	} else if existing != nil {
		slog.Debug("duplicate message ignored", "user", msg.UserID, "hash", hash)
		return &IngestResult{Duplicate: true, Existing: existing}, nil
	}

	var loc *model.Location
	if candidate != nil {
		gps := candidate.GPS
		if gps == nil {
			gps = msg.GPSHint
		}
		loc, _ = e.locations.Resolve(ctx, location.Request{
			UserID:    msg.UserID,
			Timestamp: msg.Timestamp,
			Merchant:  candidate.Merchant,
			Sender:    msg.Sender,
			RawText:   rawText,
			GPS:       gps,
		})
	}

	pending := &model.PendingTransaction{
		ID:          uuid.NewString(),
		UserID:      msg.UserID,
		Source:      buildSource(msg),
		RawContent:  rawText,
		MessageDate: msg.Timestamp,
		Strategy:    strategy,
		Status:      model.StatusPending,
		MessageHash: hash,
		Location:    loc,
		CreatedAt:   time.Now(),
		ExpiresAt:   time.Now().Add(e.config.PendingTTL),
	}

	if candidate == nil {
		// Unparseable messages are retained at rock-bottom confidence to
		// feed future pattern learning, not dropped.
		pending.Candidate = model.Candidate{
			Currency: "INR",
			Merchant: model.UnknownMerchant,
			Category: model.DefaultCategory,
			Type:     model.TypeExpense,
		}
		pending.Confidence = failedParseConfidence
		pending.NeedsManualReview = true
	} else {
		pending.Candidate = *candidate
		pending.Confidence = Score(candidate, rawText)
	}

	if candidate != nil && e.config.AutoCreateThreshold > 0 && pending.Confidence >= e.config.AutoCreateThreshold {
		return e.materializeDirect(ctx, msg, pending)
	}

	if err := e.storage.CreatePendingIfAbsent(ctx, pending); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			// Lost a race with a concurrent delivery of the same message.
			existing, lookupErr := e.storage.GetPendingByHash(ctx, msg.UserID, hash)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &IngestResult{Duplicate: true, Existing: existing}, nil
		}
		return nil, fmt.Errorf("failed to create pending transaction: %w", err)
	}

	e.notifyPending(ctx, msg, pending)

	return &IngestResult{Pending: pending}, nil
}

// parseMessage picks the parsing strategy: bank-specific rules when the
// sender domain is known, the generic parser otherwise, and a learned
// email-sender pattern overlay on top of either. A nil candidate means the
// amount was unresolvable.
func (e *Engine) parseMessage(ctx context.Context, msg InboundMessage, rawText string) (*model.Candidate, model.ParseStrategy) {
	var candidate *model.Candidate
	var err error
	strategy := model.StrategyGenericParser

	if profile := e.banks.Match(msg.Sender); profile != nil {
		candidate, err = e.banks.Parse(profile, rawText)
		strategy = model.StrategyBankPattern
	} else {
		candidate, err = e.parser.Parse(rawText)
	}
	if err != nil {
		slog.Debug("parse failed", "user", msg.UserID, "sender", msg.Sender, "error", err)
		return nil, model.StrategyFailed
	}

	if isEmailKind(msg.Kind) {
		if pattern, lookupErr := e.emailLearner.Best(ctx, msg.UserID, msg.Sender); lookupErr == nil && pattern != nil {
			applyEmailPattern(candidate, pattern)
			strategy = model.StrategyLearnedPattern
		}
	}

	e.applySuggestions(ctx, msg.UserID, candidate)

	return candidate, strategy
}

// applySuggestions overlays the merchant pattern store: canonical name
// always, category and payment method only above their confidence gate.
func (e *Engine) applySuggestions(ctx context.Context, userID string, candidate *model.Candidate) {
	suggestions, err := e.merchantLearner.Suggest(ctx, userID, *candidate)
	if err != nil || suggestions == nil {
		return
	}
	if suggestions.CanonicalMerchant != "" {
		candidate.Merchant = suggestions.CanonicalMerchant
	}
	if suggestions.Category != "" {
		candidate.Category = suggestions.Category
	}
	if suggestions.PaymentMethod != "" {
		candidate.PaymentMethod = suggestions.PaymentMethod
	}
}

// fingerprint prefers the stable transport message id; without one it
// falls back to content identity at day granularity, and for unparseable
// messages to the raw text itself.
func (e *Engine) fingerprint(msg InboundMessage, candidate *model.Candidate, rawText string) string {
	if msg.MessageID != "" {
		return model.FingerprintMessage(msg.UserID, msg.MessageID)
	}
	if candidate != nil {
		return model.FingerprintComposite(msg.UserID, candidate.Amount, candidate.Merchant, msg.Timestamp)
	}
	return model.FingerprintMessage(msg.UserID, rawText)
}

func (e *Engine) findExisting(ctx context.Context, userID, hash string) (*model.PendingTransaction, error) {
	pending, err := e.storage.GetPendingByHash(ctx, userID, hash)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if pending != nil {
		return pending, nil
	}
	txn, err := e.storage.GetTransactionByHash(ctx, userID, hash)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}
	if txn != nil {
		// Surface the materialized record through a terminal pending shim
		// so callers get a uniform duplicate shape.
		return &model.PendingTransaction{
			ID:                    txn.ID,
			UserID:                userID,
			Status:                model.StatusApproved,
			MessageHash:           hash,
			ApprovedTransactionID: txn.ID,
		}, nil
	}
	return nil, nil
}

// materializeDirect skips review for high-confidence candidates.
func (e *Engine) materializeDirect(ctx context.Context, msg InboundMessage, pending *model.PendingTransaction) (*IngestResult, error) {
	txn := buildTransaction(pending, pending.Candidate, "")
	if err := e.storage.SaveTransaction(ctx, txn); err != nil {
		if errors.Is(err, common.ErrDuplicateEntry) {
			existing, lookupErr := e.findExisting(ctx, msg.UserID, pending.MessageHash)
			if lookupErr != nil {
				return nil, lookupErr
			}
			return &IngestResult{Duplicate: true, Existing: existing}, nil
		}
		return nil, fmt.Errorf("failed to save transaction: %w", err)
	}
	e.learnFromApproval(ctx, pending, pending.Candidate, txn)
	return &IngestResult{Transaction: txn}, nil
}

// notifyPending fires the single push notification for a new pending
// record. Failures are logged and never retried; the latch prevents a
// second send.
func (e *Engine) notifyPending(ctx context.Context, msg InboundMessage, pending *model.PendingTransaction) {
	if e.notifier == nil || msg.DeviceToken == "" || pending.NotificationSent {
		return
	}

	n := service.Notification{
		Title: "New transaction to review",
		Body: fmt.Sprintf("%s %s at %s",
			pending.Candidate.Currency,
			pending.Candidate.Amount.StringFixed(2),
			pending.Candidate.Merchant),
		Data: map[string]string{"pendingId": pending.ID},
	}
	if err := e.notifier.Notify(ctx, msg.DeviceToken, n); err != nil {
		common.LogWarn("push notification failed", common.Fields{"pending": pending.ID, "error": err})
		return
	}
	pending.NotificationSent = true
	if err := e.storage.MarkNotificationSent(ctx, pending.ID); err != nil {
		common.LogWarn("failed to latch notification flag", common.Fields{"pending": pending.ID, "error": err})
	}
}

func buildSource(msg InboundMessage) model.Source {
	src := model.Source{Kind: msg.Kind}
	switch msg.Kind {
	case model.SourceSMS:
		src.SMS = &model.SMSSource{Sender: msg.Sender}
	case model.SourceEmail, model.SourceGmail:
		src.Email = &model.EmailSource{
			MessageID: msg.MessageID,
			Subject:   msg.Subject,
			From:      msg.Sender,
		}
	case model.SourceManual:
	}
	return src
}

func isEmailKind(kind model.SourceKind) bool {
	return kind == model.SourceEmail || kind == model.SourceGmail
}

func applyEmailPattern(candidate *model.Candidate, pattern *model.EmailParsingPattern) {
	if pattern.Merchant != "" {
		candidate.Merchant = pattern.Merchant
	}
	if pattern.Category != "" {
		candidate.Category = pattern.Category
	}
	if pattern.PaymentMethod != "" {
		candidate.PaymentMethod = pattern.PaymentMethod
	}
	if pattern.Type != "" {
		candidate.Type = pattern.Type
	}
	if pattern.Confidence > candidate.Confidence {
		candidate.Confidence = pattern.Confidence
	}
}
