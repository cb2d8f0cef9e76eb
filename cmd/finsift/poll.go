package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/finsift/finsift/internal/config"
	"github.com/finsift/finsift/internal/gmail"
)

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize Gmail access",
		Long: `Run the interactive OAuth flow for read-only Gmail access and save
the token for the poll command.`,
		RunE: runAuth,
	}
}

func runAuth(cmd *cobra.Command, _ []string) error {
	_, err := gmail.Authorize(cmd.Context(), gmailOAuthConfig())
	if err != nil {
		return fmt.Errorf("gmail authorization failed: %w", err)
	}
	slog.Info("Gmail authorized successfully")
	return nil
}

func pollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll Gmail for bank notification emails",
		Long: `Scan the authorized mailbox on an interval and ingest matching
messages. Runs until interrupted. Re-ingesting an already-seen message
is harmless; deduplication drops it.`,
		RunE: runPoll,
	}

	cmd.Flags().String("user", "", "user id owning the mailbox (required)")
	cmd.Flags().String("device-token", "", "push notification target")
	cmd.Flags().Duration("interval", 0, "poll interval (default 5m)")
	cmd.Flags().String("query", "", "gmail search query (default newer_than:2d)")
	cmd.Flags().Bool("once", false, "poll a single time and exit")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runPoll(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	svc, err := gmail.NewService(ctx, gmailOAuthConfig())
	if err != nil {
		return err
	}

	eng, store, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	interval, _ := cmd.Flags().GetDuration("interval")
	poller, err := gmail.NewPoller(svc, eng, gmail.PollerConfig{
		UserID:      mustString(cmd, "user"),
		DeviceToken: mustString(cmd, "device-token"),
		Interval:    interval,
		Query:       mustString(cmd, "query"),
	})
	if err != nil {
		return err
	}

	if once, _ := cmd.Flags().GetBool("once"); once {
		return poller.PollOnce(ctx)
	}

	if err := poller.Run(ctx); err != nil && !errors.Is(err, ctx.Err()) {
		return err
	}
	return nil
}

func gmailOAuthConfig() gmail.OAuthConfig {
	tokenFile := viper.GetString("gmail.token_file")
	if tokenFile == "" {
		tokenFile = config.DefaultTokenPath()
	}
	return gmail.OAuthConfig{
		ClientID:     viper.GetString("gmail.client_id"),
		ClientSecret: viper.GetString("gmail.client_secret"),
		TokenFile:    config.ExpandPath(tokenFile),
	}
}
