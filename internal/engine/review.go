package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/model"
)

// Approve transitions a pending record to approved, materializing the
// transaction. corrected may be nil for an as-parsed approval. Learning
// store updates are best-effort: their failure is logged and never rolls
// back the already-created transaction.
func (e *Engine) Approve(ctx context.Context, pendingID string, corrected *model.CorrectedData) (*model.Transaction, error) {
	pending, err := e.storage.GetPendingTransaction(ctx, pendingID)
	if err != nil {
		return nil, err
	}
	if pending.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", common.ErrAlreadyProcessed, pendingID, pending.Status)
	}

	final := corrected.Apply(pending.Candidate)
	txn := buildTransaction(pending, final, correctionNote(corrected))

	// Feedback reflects what actually changed, not what flags were passed:
	// a correction restating the parsed value is a plain approval.
	feedback := "approved"
	if correctsParse(pending.Candidate, final) {
		feedback = "approved with corrections"
	}

	// The conditional update inside ApprovePending is the idempotency
	// guarantee; the status check above just avoids building a transaction
	// for the common repeat call.
	if err := e.storage.ApprovePending(ctx, pendingID, txn, feedback); err != nil {
		return nil, err
	}

	e.learnFromApproval(ctx, pending, final, txn)

	return txn, nil
}

// Reject transitions a pending record to rejected with an optional
// free-text reason. No learning stores are touched.
func (e *Engine) Reject(ctx context.Context, pendingID, reason string) error {
	pending, err := e.storage.GetPendingTransaction(ctx, pendingID)
	if err != nil {
		return err
	}
	if pending.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", common.ErrAlreadyProcessed, pendingID, pending.Status)
	}
	return e.storage.RejectPending(ctx, pendingID, reason)
}

// learnFromApproval feeds the learning stores after a transaction is
// created. Every failure here is logged and swallowed.
func (e *Engine) learnFromApproval(ctx context.Context, pending *model.PendingTransaction, final model.Candidate, txn *model.Transaction) {
	if err := e.merchantLearner.RecordApproval(ctx, pending.UserID, pending.Candidate, final); err != nil {
		common.LogWarn("merchant pattern update failed", common.Fields{"pending": pending.ID, "error": err})
	}

	if correctsParse(pending.Candidate, final) && isEmailKind(pending.Source.Kind) {
		sender := pending.Source.SenderIdentifier()
		if err := e.emailLearner.RecordCorrection(ctx, pending.UserID, sender, final); err != nil {
			common.LogWarn("email pattern update failed", common.Fields{"pending": pending.ID, "error": err})
		}
	}

	if txn.Location != nil {
		e.learnLocation(ctx, pending, final, txn.Location)
	}
}

func (e *Engine) learnLocation(ctx context.Context, pending *model.PendingTransaction, final model.Candidate, loc *model.Location) {
	// Only trusted coordinates feed the merchant location average.
	if loc.Source == model.LocationFromGPS || loc.Source == model.LocationFromBackground {
		gps := model.GeoPoint{Lat: loc.Lat, Lng: loc.Lng}
		if err := e.locationLearner.RecordVisit(ctx, pending.UserID, final.Merchant, gps, pending.MessageDate); err != nil {
			common.LogWarn("merchant location update failed", common.Fields{"pending": pending.ID, "error": err})
		}
	}

	// A confirmed place name in an email teaches a sender pattern so the
	// next email resolves without geocoding.
	if isEmailKind(pending.Source.Kind) && loc.PlaceName != "" && loc.Source != model.LocationFromEmailPattern {
		sender := pending.Source.SenderIdentifier()
		if err := e.locationLearner.LearnEmailPattern(ctx, pending.UserID, sender, final.Merchant, loc.PlaceName, *loc); err != nil {
			common.LogWarn("email location pattern update failed", common.Fields{"pending": pending.ID, "error": err})
		}
	}
}

// correctsParse reports whether the final candidate differs from the
// parsed one on a field the learning stores care about.
func correctsParse(parsed, final model.Candidate) bool {
	return final.Merchant != parsed.Merchant ||
		final.Category != parsed.Category ||
		final.PaymentMethod != parsed.PaymentMethod ||
		final.Type != parsed.Type ||
		!final.Amount.Equal(parsed.Amount)
}

// correctionNote extracts the free-text note, if one was supplied.
func correctionNote(corrected *model.CorrectedData) string {
	if corrected == nil || corrected.Note == nil {
		return ""
	}
	return *corrected.Note
}

// buildTransaction materializes the final candidate fields into a
// transaction record carrying the pending record's provenance and hash.
func buildTransaction(pending *model.PendingTransaction, final model.Candidate, note string) *model.Transaction {
	return &model.Transaction{
		ID:            uuid.NewString(),
		UserID:        pending.UserID,
		Amount:        final.Amount,
		Currency:      final.Currency,
		Type:          final.Type,
		Category:      final.Category,
		SubCategory:   final.SubCategory,
		Merchant:      final.Merchant,
		Note:          note,
		PaymentMethod: final.PaymentMethod,
		Source:        pending.Source,
		Location:      pending.Location,
		Date:          pending.MessageDate,
		MessageHash:   pending.MessageHash,
		CreatedAt:     time.Now(),
	}
}
