package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/finsift/finsift/internal/engine"
	"github.com/finsift/finsift/internal/model"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest [message text]",
		Short: "Ingest one notification message",
		Long: `Run a single bank notification through the parsing pipeline.

The message body is taken from the argument, or from stdin when no
argument is given. Duplicate deliveries of the same message are detected
and ignored.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runIngest,
	}

	cmd.Flags().String("user", "", "user id owning the message (required)")
	cmd.Flags().String("kind", "sms", "message source: sms, email, or manual")
	cmd.Flags().String("sender", "", "sender id or email address")
	cmd.Flags().String("message-id", "", "stable transport message id, if any")
	cmd.Flags().String("subject", "", "email subject line")
	cmd.Flags().String("gps", "", "device coordinates as lat,lng")
	cmd.Flags().String("device-token", "", "push notification target")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	body, err := readBody(args)
	if err != nil {
		return err
	}

	kind, err := parseSourceKind(mustString(cmd, "kind"))
	if err != nil {
		return err
	}

	gps, err := parseGPS(mustString(cmd, "gps"))
	if err != nil {
		return err
	}

	eng, store, err := initEngine(cmd.Context())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	result, err := eng.IngestMessage(cmd.Context(), engine.InboundMessage{
		UserID:      mustString(cmd, "user"),
		Kind:        kind,
		Sender:      mustString(cmd, "sender"),
		MessageID:   mustString(cmd, "message-id"),
		Subject:     mustString(cmd, "subject"),
		Body:        body,
		Timestamp:   time.Now(),
		GPSHint:     gps,
		DeviceToken: mustString(cmd, "device-token"),
	})
	if err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}

	switch {
	case result.Duplicate:
		slog.Info("Duplicate message, nothing created", "existing", result.Existing.ID)
	case result.Transaction != nil:
		slog.Info("Transaction created directly",
			"id", result.Transaction.ID,
			"amount", result.Transaction.Amount.StringFixed(2),
			"merchant", result.Transaction.Merchant)
	default:
		slog.Info("Pending transaction queued for review",
			"id", result.Pending.ID,
			"amount", result.Pending.Candidate.Amount.StringFixed(2),
			"merchant", result.Pending.Candidate.Merchant,
			"confidence", fmt.Sprintf("%.2f", result.Pending.Confidence))
	}
	return nil
}

func readBody(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read message from stdin: %w", err)
	}
	body := strings.TrimSpace(string(data))
	if body == "" {
		return "", fmt.Errorf("empty message body")
	}
	return body, nil
}

func parseSourceKind(value string) (model.SourceKind, error) {
	switch model.SourceKind(value) {
	case model.SourceSMS, model.SourceEmail, model.SourceGmail, model.SourceManual:
		return model.SourceKind(value), nil
	default:
		return "", fmt.Errorf("invalid source kind: %s", value)
	}
}

func parseGPS(value string) (*model.GeoPoint, error) {
	if value == "" {
		return nil, nil
	}
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid gps value %q, expected lat,lng", value)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %w", err)
	}
	return &model.GeoPoint{Lat: lat, Lng: lng}, nil
}

func mustString(cmd *cobra.Command, name string) string {
	value, _ := cmd.Flags().GetString(name)
	return value
}
