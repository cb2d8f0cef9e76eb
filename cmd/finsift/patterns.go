package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func patternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patterns",
		Short: "Inspect learned parsing patterns",
	}

	cmd.AddCommand(merchantPatternsCmd())
	cmd.AddCommand(emailPatternsCmd())

	return cmd
}

func merchantPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "merchants",
		Short: "List a user's learned merchant patterns",
		RunE:  runMerchantPatterns,
	}

	cmd.Flags().String("user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runMerchantPatterns(cmd *cobra.Command, _ []string) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	patterns, err := store.ListMerchantPatterns(cmd.Context(), mustString(cmd, "user"))
	if err != nil {
		return fmt.Errorf("failed to list merchant patterns: %w", err)
	}
	if len(patterns) == 0 {
		slog.Info("No merchant patterns learned yet")
		return nil
	}

	for i := range patterns {
		p := &patterns[i]
		slog.Info("merchant pattern",
			"merchant", p.CanonicalName,
			"variations", len(p.Variations),
			"category", p.Category.Value,
			"category_confidence", fmt.Sprintf("%.2f", p.Category.Confidence),
			"payment", p.Payment.Value,
			"uses", p.UseCount)
	}
	return nil
}

func emailPatternsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "emails",
		Short: "List learned email-sender patterns for a sender",
		RunE:  runEmailPatterns,
	}

	cmd.Flags().String("user", "", "user id (required)")
	cmd.Flags().String("sender", "", "sender email address (required)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("sender")

	return cmd
}

func runEmailPatterns(cmd *cobra.Command, _ []string) error {
	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	patterns, err := store.GetEmailPatterns(cmd.Context(), mustString(cmd, "user"), mustString(cmd, "sender"))
	if err != nil {
		return fmt.Errorf("failed to list email patterns: %w", err)
	}
	if len(patterns) == 0 {
		slog.Info("No email patterns learned for this sender")
		return nil
	}

	for i := range patterns {
		p := &patterns[i]
		slog.Info("email pattern",
			"sender", p.Sender,
			"merchant", p.Merchant,
			"category", p.Category,
			"confidence", fmt.Sprintf("%.2f", p.Confidence),
			"global", p.IsGlobal,
			"confirmed_by", p.ConfirmedByUsers)
	}
	return nil
}
