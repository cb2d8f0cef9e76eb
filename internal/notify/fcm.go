// Package notify delivers push notifications for newly created pending
// transactions via Firebase Cloud Messaging.
package notify

import (
	"context"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/service"
)

// sendTimeout bounds each FCM call so a slow push can never stall the
// ingestion pipeline.
const sendTimeout = 10 * time.Second

// Compile-time check.
var _ service.Notifier = (*FCMNotifier)(nil)

// FCMNotifier sends pushes through Firebase Cloud Messaging.
type FCMNotifier struct {
	client *messaging.Client
}

// NewFCMNotifier initializes the Firebase app from a service account
// credentials file.
func NewFCMNotifier(ctx context.Context, credentialsFile string) (*FCMNotifier, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize firebase app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create messaging client: %w", err)
	}
	return &FCMNotifier{client: client}, nil
}

// Notify sends one push to the device token. Failures are returned for
// the caller to log; the pipeline never retries them.
func (n *FCMNotifier) Notify(ctx context.Context, deviceToken string, notification service.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	msg := &messaging.Message{
		Token: deviceToken,
		Notification: &messaging.Notification{
			Title: notification.Title,
			Body:  notification.Body,
		},
		Data: notification.Data,
	}

	if _, err := n.client.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: fcm send: %v", common.ErrNotificationFailed, err)
	}
	return nil
}
