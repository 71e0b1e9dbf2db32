// Package natspush adapts a NATS connection to the uniform provider contract.
//
// This is the direct persistent-connection transport: devices behind hardened
// networks (or on OS images without a vendor push client) keep a long-lived
// subscription on an inbox subject and receive notifications straight from
// the broker. The device's transport token is its inbox subject.
package natspush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// maxPayloadBytes is a deliberate transport budget well under the broker's
// 1 MB default so notification traffic can never crowd out other subjects.
const maxPayloadBytes = 65536

// Config holds broker settings for the adapter.
type Config struct {
	URL             string
	SubjectPrefix   string
	SendTimeout     time.Duration
	BulkConcurrency int
}

// envelope is the wire shape delivered to device inboxes.
type envelope struct {
	Title       string            `json:"title"`
	Body        string            `json:"body,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    string            `json:"priority,omitempty"`
	CollapseKey string            `json:"collapse_key,omitempty"`
	TTLSeconds  int               `json:"ttl_seconds"`
	SentAt      time.Time         `json:"sent_at"`
}

// Provider publishes notifications to per-device inbox subjects.
type Provider struct {
	cfg    Config
	nc     *nats.Conn
	logger *logger.Logger
}

// New returns an uninitialized NATS provider.
func New(cfg Config, log *logger.Logger) *Provider {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "push.device"
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = provider.DefaultSendTimeout
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = provider.DefaultBulkConcurrency
	}
	return &Provider{
		cfg:    cfg,
		logger: log.WithComponent("nats-provider"),
	}
}

func (p *Provider) Platform() push.Platform { return push.PlatformNATS }

func (p *Provider) MaxPayloadBytes() int { return maxPayloadBytes }

// Initialize connects to the broker with unlimited reconnects; the connection
// is shared by all sends for the life of the process.
func (p *Provider) Initialize(ctx context.Context) error {
	nc, err := nats.Connect(p.cfg.URL,
		nats.Name("pushcore"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to nats: %w", err)
	}

	p.nc = nc
	p.logger.Info("nats provider initialized", slog.String("url", nc.ConnectedUrl()))
	return nil
}

// Close drains the connection on shutdown.
func (p *Provider) Close() {
	if p.nc != nil {
		_ = p.nc.Drain()
	}
}

// Send publishes the payload to the device inbox subject and flushes so the
// broker has accepted the message before the outcome is reported.
func (p *Provider) Send(ctx context.Context, target push.DeviceTarget, payload *push.Payload) provider.Outcome {
	if p.nc == nil {
		return provider.Outcome{
			ErrorCode:    provider.ErrorServiceUnavailable,
			ErrorMessage: "nats provider not initialized",
		}
	}

	token := target.TokenFor(push.PlatformNATS)
	if !p.ValidateToken(token) {
		return provider.Outcome{
			ErrorCode:    provider.ErrorInvalidTarget,
			ErrorMessage: "malformed inbox subject",
		}
	}

	raw, err := json.Marshal(envelope{
		Title:       payload.Title,
		Body:        payload.Body,
		Data:        payload.Data,
		Priority:    string(payload.Priority),
		CollapseKey: payload.CollapseKey,
		TTLSeconds:  payload.TTL(),
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return provider.Outcome{
			ErrorCode:    provider.ErrorUnknown,
			ErrorMessage: "failed to encode envelope: " + err.Error(),
		}
	}

	subject := p.cfg.SubjectPrefix + "." + token
	if err := p.nc.Publish(subject, raw); err != nil {
		return p.normalize(ctx, err)
	}

	timeout := p.cfg.SendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := p.nc.FlushTimeout(timeout); err != nil {
		return p.normalize(ctx, err)
	}

	return provider.Outcome{Success: true}
}

// SendBulk fans out concurrently, bounded per provider, attempting all items.
func (p *Provider) SendBulk(ctx context.Context, items []provider.BulkItem) []provider.Outcome {
	return provider.Fanout(ctx, int64(p.cfg.BulkConcurrency), p.cfg.SendTimeout, items,
		func(ctx context.Context, item provider.BulkItem) provider.Outcome {
			return p.Send(ctx, item.Target, item.Payload)
		})
}

// ValidateToken accepts a literal subject fragment: dot-separated tokens with
// no wildcards, whitespace or empty segments.
func (p *Provider) ValidateToken(token string) bool {
	if token == "" || strings.ContainsAny(token, " \t\n*>") {
		return false
	}
	for _, part := range strings.Split(token, ".") {
		if part == "" {
			return false
		}
	}
	return true
}

func (p *Provider) HealthCheck(ctx context.Context) provider.Health {
	if p.nc == nil {
		return provider.Health{Status: "down", Detail: "not connected"}
	}
	if p.nc.Status() != nats.CONNECTED {
		return provider.Health{Status: "down", Detail: p.nc.Status().String()}
	}
	return provider.Health{Status: "ok", Detail: p.nc.ConnectedUrl()}
}

func (p *Provider) normalize(ctx context.Context, err error) provider.Outcome {
	out := provider.Outcome{ErrorMessage: err.Error(), ErrorCode: provider.ErrorUnknown}

	switch {
	case errors.Is(err, nats.ErrConnectionClosed),
		errors.Is(err, nats.ErrTimeout),
		errors.Is(err, nats.ErrReconnectBufExceeded):
		out.ErrorCode = provider.ErrorServiceUnavailable
	case errors.Is(err, nats.ErrBadSubject):
		out.ErrorCode = provider.ErrorInvalidTarget
	case errors.Is(err, nats.ErrMaxPayload):
		out.ErrorCode = provider.ErrorPayloadTooLarge
	case errors.Is(err, nats.ErrAuthorization):
		out.ErrorCode = provider.ErrorUnauthorized
	case provider.OutcomeFromContextErr(ctx.Err()) != provider.ErrorNone:
		out.ErrorCode = provider.ErrorServiceUnavailable
	}

	if out.ErrorCode == provider.ErrorUnknown {
		p.logger.Warn("unmapped nats error", slog.String("error", err.Error()))
	}
	return out
}
