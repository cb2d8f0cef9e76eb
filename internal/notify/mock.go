package notify

import (
	"context"
	"sync"

	"github.com/finsift/finsift/internal/service"
)

// MockNotifier records notifications for tests.
type MockNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification

	// FailWith, when set, is returned from every Notify call.
	FailWith error
}

// SentNotification is one recorded delivery.
type SentNotification struct {
	DeviceToken  string
	Notification service.Notification
}

// NewMockNotifier creates an empty recorder.
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// Notify records the notification, or fails if FailWith is set.
func (m *MockNotifier) Notify(_ context.Context, deviceToken string, notification service.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	m.Sent = append(m.Sent, SentNotification{
		DeviceToken:  deviceToken,
		Notification: notification,
	})
	return nil
}

// Count returns how many notifications were delivered.
func (m *MockNotifier) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
