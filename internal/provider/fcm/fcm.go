// Package fcm adapts Firebase Cloud Messaging to the uniform provider
// contract.
package fcm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// maxPayloadBytes is FCM's documented limit for the data payload.
const maxPayloadBytes = 4096

// Config holds the Firebase credentials and tuning for the adapter.
type Config struct {
	ProjectID       string
	CredentialsJSON string
	SendTimeout     time.Duration
	BulkConcurrency int
}

// Provider sends notifications through FCM's v1 API.
type Provider struct {
	cfg    Config
	client *messaging.Client
	logger *logger.Logger
}

// New returns an uninitialized FCM provider. Initialize must succeed before
// the first Send.
func New(cfg Config, log *logger.Logger) *Provider {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = provider.DefaultSendTimeout
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = provider.DefaultBulkConcurrency
	}
	return &Provider{
		cfg:    cfg,
		logger: log.WithComponent("fcm-provider"),
	}
}

func (p *Provider) Platform() push.Platform { return push.PlatformFCM }

func (p *Provider) MaxPayloadBytes() int { return maxPayloadBytes }

// Initialize creates the Firebase app and messaging client. The caller owns
// retries.
func (p *Provider) Initialize(ctx context.Context) error {
	app, err := firebase.NewApp(ctx,
		&firebase.Config{ProjectID: p.cfg.ProjectID},
		option.WithCredentialsJSON([]byte(p.cfg.CredentialsJSON)),
	)
	if err != nil {
		return fmt.Errorf("failed to initialize firebase app: %w", err)
	}

	client, err := app.Messaging(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize fcm messaging client: %w", err)
	}

	p.client = client
	p.logger.Info("fcm provider initialized", slog.String("project_id", p.cfg.ProjectID))
	return nil
}

// Send delivers one payload to one registration token. No internal retries.
func (p *Provider) Send(ctx context.Context, target push.DeviceTarget, payload *push.Payload) provider.Outcome {
	if p.client == nil {
		return provider.Outcome{
			ErrorCode:    provider.ErrorServiceUnavailable,
			ErrorMessage: "fcm provider not initialized",
		}
	}

	token := target.TokenFor(push.PlatformFCM)
	if !p.ValidateToken(token) {
		return provider.Outcome{
			ErrorCode:    provider.ErrorInvalidTarget,
			ErrorMessage: "malformed fcm registration token",
		}
	}

	id, err := p.client.Send(ctx, p.buildMessage(token, payload))
	if err != nil {
		return p.normalize(ctx, err)
	}

	return provider.Outcome{Success: true, ProviderMessageID: id}
}

// SendBulk fans out concurrently, bounded per provider, attempting all items.
func (p *Provider) SendBulk(ctx context.Context, items []provider.BulkItem) []provider.Outcome {
	return provider.Fanout(ctx, int64(p.cfg.BulkConcurrency), p.cfg.SendTimeout, items,
		func(ctx context.Context, item provider.BulkItem) provider.Outcome {
			return p.Send(ctx, item.Target, item.Payload)
		})
}

// ValidateToken is a format-only check; FCM registration tokens are long
// opaque strings with no whitespace.
func (p *Provider) ValidateToken(token string) bool {
	if len(token) < 32 || len(token) > 4096 {
		return false
	}
	return !strings.ContainsAny(token, " \t\n")
}

func (p *Provider) HealthCheck(ctx context.Context) provider.Health {
	if p.client == nil {
		return provider.Health{Status: "down", Detail: "messaging client not initialized"}
	}
	return provider.Health{Status: "ok", Detail: "project " + p.cfg.ProjectID}
}

func (p *Provider) buildMessage(token string, payload *push.Payload) *messaging.Message {
	ttl := time.Duration(payload.TTL()) * time.Second

	androidPriority := "normal"
	if payload.Priority == push.PriorityHigh || payload.Priority == push.PriorityCritical {
		androidPriority = "high"
	}

	return &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: payload.Title,
			Body:  payload.Body,
		},
		Data: payload.Data,
		Android: &messaging.AndroidConfig{
			TTL:         &ttl,
			Priority:    androidPriority,
			CollapseKey: payload.CollapseKey,
		},
	}
}

// normalize maps the SDK's error vocabulary onto the shared taxonomy.
func (p *Provider) normalize(ctx context.Context, err error) provider.Outcome {
	out := provider.Outcome{ErrorMessage: err.Error(), ErrorCode: provider.ErrorUnknown}

	switch {
	case messaging.IsUnregistered(err):
		out.ErrorCode = provider.ErrorTargetExpired
	case messaging.IsInvalidArgument(err):
		out.ErrorCode = provider.ErrorInvalidTarget
	case messaging.IsSenderIDMismatch(err):
		out.ErrorCode = provider.ErrorInvalidTarget
	case messaging.IsQuotaExceeded(err):
		out.ErrorCode = provider.ErrorThrottled
		out.RetryAfterSeconds = 60
	case messaging.IsUnavailable(err), messaging.IsInternal(err):
		out.ErrorCode = provider.ErrorServiceUnavailable
	case messaging.IsThirdPartyAuthError(err):
		out.ErrorCode = provider.ErrorUnauthorized
	case provider.OutcomeFromContextErr(ctx.Err()) != provider.ErrorNone:
		out.ErrorCode = provider.ErrorServiceUnavailable
	}

	if out.ErrorCode == provider.ErrorUnknown {
		p.logger.Warn("unmapped fcm error", slog.String("error", err.Error()))
	}
	return out
}
