package main

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/geocode"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

func pendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List transactions awaiting review",
		RunE:  runPending,
	}

	cmd.Flags().String("user", "", "user id (required)")
	cmd.Flags().Bool("geocode", false, "resolve addresses for located entries")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPending(cmd *cobra.Command, _ []string) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	pending, err := store.ListPendingByUser(cmd.Context(), mustString(cmd, "user"))
	if err != nil {
		return fmt.Errorf("failed to list pending transactions: %w", err)
	}
	if len(pending) == 0 {
		slog.Info("No transactions awaiting review")
		return nil
	}

	var geocoder service.Geocoder
	if useGeocode, _ := cmd.Flags().GetBool("geocode"); useGeocode {
		geocoder = geocode.NewNominatimClient(
			viper.GetString("geocode.base_url"),
			"finsift/"+version)
	}

	for i := range pending {
		p := &pending[i]
		fields := []any{
			"id", p.ID,
			"amount", p.Candidate.Currency + " " + p.Candidate.Amount.StringFixed(2),
			"merchant", p.Candidate.Merchant,
			"category", p.Candidate.Category,
			"confidence", fmt.Sprintf("%.2f", p.Confidence),
			"age", formatAge(p.CreatedAt),
		}
		if p.NeedsManualReview {
			fields = append(fields, "needs_review", true)
		}
		if desc := describeLocation(cmd, geocoder, p.Location); desc != "" {
			fields = append(fields, "location", desc)
		}
		slog.Info("pending", fields...)
	}
	return nil
}

// describeLocation renders a pending record's location, reverse-geocoding
// coordinates on demand when --geocode is set.
func describeLocation(cmd *cobra.Command, geocoder service.Geocoder, loc *model.Location) string {
	if loc == nil {
		return ""
	}
	if loc.PlaceName != "" {
		return loc.PlaceName
	}
	if loc.Address != "" {
		return loc.Address
	}
	if geocoder != nil && (loc.Lat != 0 || loc.Lng != 0) {
		if result, err := geocoder.ReverseGeocode(cmd.Context(), loc.Lat, loc.Lng); err == nil {
			if result.PlaceName != "" {
				return result.PlaceName
			}
			return result.Address
		}
	}
	return fmt.Sprintf("%.4f,%.4f", loc.Lat, loc.Lng)
}

// reviewError translates review transition failures into messages fit for
// the terminal.
func reviewError(pendingID string, err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.NewUserError(fmt.Sprintf("no pending transaction %s", pendingID), err)
	case errors.Is(err, common.ErrAlreadyProcessed):
		return common.NewUserError(fmt.Sprintf("pending transaction %s was already reviewed", pendingID), err)
	default:
		return err
	}
}

func approveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <pending-id>",
		Short: "Approve a pending transaction",
		Long: `Approve a pending transaction, creating the final record.

Correction flags override the parsed values; corrections feed the
merchant and email pattern learners so future parses improve.`,
		Args: cobra.ExactArgs(1),
		RunE: runApprove,
	}

	cmd.Flags().String("merchant", "", "correct the merchant name")
	cmd.Flags().String("category", "", "correct the category")
	cmd.Flags().String("payment", "", "correct the payment method")
	cmd.Flags().String("amount", "", "correct the amount")
	cmd.Flags().String("type", "", "correct the type (expense or income)")
	cmd.Flags().String("note", "", "attach a note")

	return cmd
}

func runApprove(cmd *cobra.Command, args []string) error {
	corrected, err := collectCorrections(cmd)
	if err != nil {
		return err
	}

	eng, store, err := initEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txn, err := eng.Approve(cmd.Context(), args[0], corrected)
	if err != nil {
		return reviewError(args[0], err)
	}

	slog.Info("Transaction approved",
		"id", txn.ID,
		"amount", txn.Amount.StringFixed(2),
		"merchant", txn.Merchant,
		"category", txn.Category)
	return nil
}

func collectCorrections(cmd *cobra.Command) (*model.CorrectedData, error) {
	corrected := &model.CorrectedData{}

	if v := mustString(cmd, "merchant"); v != "" {
		corrected.Merchant = &v
	}
	if v := mustString(cmd, "category"); v != "" {
		corrected.Category = &v
	}
	if v := mustString(cmd, "note"); v != "" {
		corrected.Note = &v
	}
	if v := mustString(cmd, "payment"); v != "" {
		method := model.PaymentMethod(strings.ToLower(v))
		corrected.PaymentMethod = &method
	}
	if v := mustString(cmd, "type"); v != "" {
		tt := model.TransactionType(strings.ToLower(v))
		if tt != model.TypeExpense && tt != model.TypeIncome {
			return nil, fmt.Errorf("invalid type: %s", v)
		}
		corrected.Type = &tt
	}
	if v := mustString(cmd, "amount"); v != "" {
		amount, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid amount: %w", err)
		}
		corrected.Amount = &amount
	}

	if corrected.Empty() {
		return nil, nil
	}
	return corrected, nil
}

func rejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <pending-id>",
		Short: "Reject a pending transaction",
		Args:  cobra.ExactArgs(1),
		RunE:  runReject,
	}

	cmd.Flags().String("reason", "", "why the transaction is wrong")

	return cmd
}

func runReject(cmd *cobra.Command, args []string) error {
	eng, store, err := initEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := eng.Reject(cmd.Context(), args[0], mustString(cmd, "reason")); err != nil {
		return reviewError(args[0], err)
	}

	slog.Info("Transaction rejected", "id", args[0])
	return nil
}
