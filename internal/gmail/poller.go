package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/finsift/finsift/internal/common"
	"github.com/finsift/finsift/internal/engine"
	"github.com/finsift/finsift/internal/model"
	"github.com/finsift/finsift/internal/service"
)

const (
	// DefaultInterval between mailbox scans.
	DefaultInterval = 5 * time.Minute

	// DefaultQuery restricts the scan to recent mail; the dedup index
	// makes re-reading a window harmless.
	DefaultQuery = "newer_than:2d"

	defaultMaxResults = 50
	seenCacheSize     = 500
)

// PollerConfig configures one user's mailbox poller.
type PollerConfig struct {
	UserID      string
	DeviceToken string
	Interval    time.Duration
	Query       string
	MaxResults  int64
}

// Poller periodically lists matching messages and hands unseen ones to
// the engine. Duplicates are cheap: the seen cache absorbs repeats
// within a run and the storage dedup index absorbs them across runs.
type Poller struct {
	svc    *gmailapi.Service
	engine *engine.Engine
	config PollerConfig
	seen   *seenCache
}

// NewPoller creates a poller. Zero config fields get defaults.
func NewPoller(svc *gmailapi.Service, eng *engine.Engine, config PollerConfig) (*Poller, error) {
	if config.UserID == "" {
		return nil, fmt.Errorf("%w: poller user id", common.ErrMissingConfig)
	}
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Query == "" {
		config.Query = DefaultQuery
	}
	if config.MaxResults <= 0 {
		config.MaxResults = defaultMaxResults
	}
	return &Poller{
		svc:    svc,
		engine: eng,
		config: config,
		seen:   newSeenCache(seenCacheSize),
	}, nil
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	common.LogInfo("gmail poller started", common.Fields{
		"user":     p.config.UserID,
		"interval": p.config.Interval.String(),
		"query":    p.config.Query,
	})

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if err := p.PollOnce(ctx); err != nil {
			common.LogError(err, "gmail poll failed", common.Fields{"user": p.config.UserID})
		}
		select {
		case <-ctx.Done():
			common.LogInfo("gmail poller stopped", common.Fields{"user": p.config.UserID})
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// PollOnce scans the mailbox a single time. List calls are retried with
// backoff; ingestion errors are logged per message so one bad email
// cannot stall the rest of the batch.
func (p *Poller) PollOnce(ctx context.Context) error {
	var list *gmailapi.ListMessagesResponse
	err := common.WithRetry(ctx, func() error {
		var listErr error
		list, listErr = p.svc.Users.Messages.List("me").
			Q(p.config.Query).
			MaxResults(p.config.MaxResults).
			Context(ctx).Do()
		if listErr != nil {
			return &common.RetryableError{Err: listErr, Retryable: true}
		}
		return nil
	}, service.RetryOptions{MaxAttempts: 3, InitialDelay: time.Second})
	if err != nil {
		return fmt.Errorf("failed to list messages: %w", err)
	}

	var ingested int
	for _, ref := range list.Messages {
		if p.seen.Contains(ref.Id) {
			continue
		}
		if err := p.ingestMessage(ctx, ref.Id); err != nil {
			common.LogError(err, "failed to ingest gmail message", common.Fields{
				"user":    p.config.UserID,
				"message": ref.Id,
			})
			continue
		}
		p.seen.Add(ref.Id)
		ingested++
	}

	if ingested > 0 {
		common.LogInfo("gmail poll complete", common.Fields{
			"user":     p.config.UserID,
			"listed":   len(list.Messages),
			"ingested": ingested,
		})
	}
	return nil
}

func (p *Poller) ingestMessage(ctx context.Context, id string) error {
	msg, err := p.svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to fetch message: %w", err)
	}

	inbound := engine.InboundMessage{
		UserID:      p.config.UserID,
		Kind:        model.SourceGmail,
		MessageID:   msg.Id,
		Sender:      senderAddress(headerValue(msg.Payload, "From")),
		Subject:     headerValue(msg.Payload, "Subject"),
		Body:        extractBody(msg.Payload),
		Timestamp:   time.UnixMilli(msg.InternalDate),
		DeviceToken: p.config.DeviceToken,
	}

	_, err = p.engine.IngestMessage(ctx, inbound)
	return err
}

func headerValue(payload *gmailapi.MessagePart, name string) string {
	if payload == nil {
		return ""
	}
	for _, h := range payload.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// senderAddress reduces "HDFC Bank <alerts@hdfcbank.net>" to the bare
// address the pattern tables key on.
func senderAddress(from string) string {
	if from == "" {
		return ""
	}
	addr, err := mail.ParseAddress(from)
	if err != nil {
		return strings.TrimSpace(from)
	}
	return addr.Address
}

// extractBody walks the MIME tree preferring text/plain parts and
// falling back to text/html.
func extractBody(payload *gmailapi.MessagePart) string {
	if payload == nil {
		return ""
	}
	if text := findPart(payload, "text/plain"); text != "" {
		return text
	}
	return findPart(payload, "text/html")
}

func findPart(part *gmailapi.MessagePart, mimeType string) string {
	if part.MimeType == mimeType && part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			// Gmail sometimes omits padding.
			decoded, err = base64.RawURLEncoding.DecodeString(part.Body.Data)
			if err != nil {
				return ""
			}
		}
		return string(decoded)
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}
