// Package snspush adapts AWS SNS platform endpoints (APNs and friends) to the
// uniform provider contract.
package snspush

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

// maxPayloadBytes matches the APNs notification limit, the tightest bound
// behind an SNS platform endpoint.
const maxPayloadBytes = 4096

// Config holds AWS settings for the adapter.
type Config struct {
	Region          string
	SendTimeout     time.Duration
	BulkConcurrency int
}

// Provider publishes notifications to SNS platform endpoint ARNs.
type Provider struct {
	cfg    Config
	client *sns.Client
	logger *logger.Logger
}

// New returns an uninitialized SNS provider.
func New(cfg Config, log *logger.Logger) *Provider {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = provider.DefaultSendTimeout
	}
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = provider.DefaultBulkConcurrency
	}
	return &Provider{
		cfg:    cfg,
		logger: log.WithComponent("sns-provider"),
	}
}

func (p *Provider) Platform() push.Platform { return push.PlatformSNS }

func (p *Provider) MaxPayloadBytes() int { return maxPayloadBytes }

// Initialize loads the default AWS credential chain for the configured region.
func (p *Provider) Initialize(ctx context.Context) error {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(p.cfg.Region),
	)
	if err != nil {
		return fmt.Errorf("failed to load aws config: %w", err)
	}

	p.client = sns.NewFromConfig(awsCfg)
	p.logger.Info("sns provider initialized", slog.String("region", p.cfg.Region))
	return nil
}

// Send publishes one payload to one platform endpoint ARN.
func (p *Provider) Send(ctx context.Context, target push.DeviceTarget, payload *push.Payload) provider.Outcome {
	if p.client == nil {
		return provider.Outcome{
			ErrorCode:    provider.ErrorServiceUnavailable,
			ErrorMessage: "sns provider not initialized",
		}
	}

	arn := target.TokenFor(push.PlatformSNS)
	if !p.ValidateToken(arn) {
		return provider.Outcome{
			ErrorCode:    provider.ErrorInvalidTarget,
			ErrorMessage: "malformed endpoint arn",
		}
	}

	message, err := buildMessage(payload)
	if err != nil {
		return provider.Outcome{
			ErrorCode:    provider.ErrorUnknown,
			ErrorMessage: "failed to encode message: " + err.Error(),
		}
	}

	structure := "json"
	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TargetArn:         &arn,
		Message:           &message,
		MessageStructure:  &structure,
		MessageAttributes: attributes(payload),
	})
	if err != nil {
		return p.normalize(ctx, err)
	}

	outcome := provider.Outcome{Success: true}
	if out.MessageId != nil {
		outcome.ProviderMessageID = *out.MessageId
	}
	return outcome
}

// SendBulk fans out concurrently, bounded per provider, attempting all items.
func (p *Provider) SendBulk(ctx context.Context, items []provider.BulkItem) []provider.Outcome {
	return provider.Fanout(ctx, int64(p.cfg.BulkConcurrency), p.cfg.SendTimeout, items,
		func(ctx context.Context, item provider.BulkItem) provider.Outcome {
			return p.Send(ctx, item.Target, item.Payload)
		})
}

// ValidateToken accepts SNS platform endpoint ARNs only.
func (p *Provider) ValidateToken(token string) bool {
	return strings.HasPrefix(token, "arn:aws:sns:") && strings.Contains(token, ":endpoint/")
}

func (p *Provider) HealthCheck(ctx context.Context) provider.Health {
	if p.client == nil {
		return provider.Health{Status: "down", Detail: "client not initialized"}
	}
	return provider.Health{Status: "ok", Detail: "region " + p.cfg.Region}
}

// buildMessage produces the SNS "json" message structure with an APNs shape
// and a plain default fallback.
func buildMessage(payload *push.Payload) (string, error) {
	aps := map[string]interface{}{
		"aps": map[string]interface{}{
			"alert": map[string]string{
				"title": payload.Title,
				"body":  payload.Body,
			},
		},
	}
	for k, v := range payload.Data {
		aps[k] = v
	}
	apnsJSON, err := json.Marshal(aps)
	if err != nil {
		return "", err
	}

	wrapper := map[string]string{
		"default":      payload.Title,
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
	}
	raw, err := json.Marshal(wrapper)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func attributes(payload *push.Payload) map[string]types.MessageAttributeValue {
	stringType := "String"
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.MOBILE.APNS.TTL": {
			DataType:    &stringType,
			StringValue: strPtr(strconv.Itoa(payload.TTL())),
		},
	}
	if payload.Priority == push.PriorityHigh || payload.Priority == push.PriorityCritical {
		attrs["AWS.SNS.MOBILE.APNS.PRIORITY"] = types.MessageAttributeValue{
			DataType:    &stringType,
			StringValue: strPtr("10"),
		}
	}
	if payload.CollapseKey != "" {
		attrs["AWS.SNS.MOBILE.APNS.COLLAPSE_ID"] = types.MessageAttributeValue{
			DataType:    &stringType,
			StringValue: strPtr(payload.CollapseKey),
		}
	}
	return attrs
}

func strPtr(s string) *string { return &s }

func (p *Provider) normalize(ctx context.Context, err error) provider.Outcome {
	out := provider.Outcome{ErrorMessage: err.Error(), ErrorCode: provider.ErrorUnknown}

	var (
		endpointDisabled *types.EndpointDisabledException
		platformDisabled *types.PlatformApplicationDisabledException
		invalidParam     *types.InvalidParameterException
		throttled        *types.ThrottledException
		authErr          *types.AuthorizationErrorException
		internalErr      *types.InternalErrorException
	)

	switch {
	case errors.As(err, &endpointDisabled), errors.As(err, &platformDisabled):
		out.ErrorCode = provider.ErrorTargetExpired
	case errors.As(err, &invalidParam):
		out.ErrorCode = provider.ErrorInvalidTarget
	case errors.As(err, &throttled):
		out.ErrorCode = provider.ErrorThrottled
		out.RetryAfterSeconds = 60
	case errors.As(err, &authErr):
		out.ErrorCode = provider.ErrorUnauthorized
	case errors.As(err, &internalErr):
		out.ErrorCode = provider.ErrorServiceUnavailable
	case provider.OutcomeFromContextErr(ctx.Err()) != provider.ErrorNone:
		out.ErrorCode = provider.ErrorServiceUnavailable
	}

	if out.ErrorCode == provider.ErrorUnknown {
		p.logger.Warn("unmapped sns error", slog.String("error", err.Error()))
	}
	return out
}
