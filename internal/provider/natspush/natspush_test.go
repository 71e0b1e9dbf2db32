package natspush

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

func newTestProvider() *Provider {
	return New(Config{URL: nats.DefaultURL}, logger.New(logger.FromConfig("error", "text")))
}

func TestValidateToken(t *testing.T) {
	p := newTestProvider()

	valid := []string{"device.inbox.42", "inbox", "a.b.c.d"}
	for _, token := range valid {
		assert.True(t, p.ValidateToken(token), token)
	}

	invalid := []string{
		"",
		"device..inbox",  // empty segment
		".leading",
		"trailing.",
		"device.inbox.*", // wildcard
		"device.inbox.>",
		"has space",
		"has\ttab",
	}
	for _, token := range invalid {
		assert.False(t, p.ValidateToken(token), token)
	}
}

func TestSendBeforeInitialize(t *testing.T) {
	p := newTestProvider()

	out := p.Send(context.Background(), push.DeviceTarget{
		Platform: push.PlatformNATS,
		Token:    "device.inbox.1",
	}, &push.Payload{Title: "x"})

	assert.False(t, out.Success)
	assert.Equal(t, provider.ErrorServiceUnavailable, out.ErrorCode)
}

func TestSendRejectsMalformedSubject(t *testing.T) {
	p := newTestProvider()
	p.nc = &nats.Conn{} // token check runs before any publish

	out := p.Send(context.Background(), push.DeviceTarget{
		Platform: push.PlatformNATS,
		Token:    "bad subject",
	}, &push.Payload{Title: "x"})

	assert.Equal(t, provider.ErrorInvalidTarget, out.ErrorCode)
}

func TestNormalize(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	cases := map[error]provider.ErrorCode{
		nats.ErrConnectionClosed:     provider.ErrorServiceUnavailable,
		nats.ErrTimeout:              provider.ErrorServiceUnavailable,
		nats.ErrReconnectBufExceeded: provider.ErrorServiceUnavailable,
		nats.ErrBadSubject:           provider.ErrorInvalidTarget,
		nats.ErrMaxPayload:           provider.ErrorPayloadTooLarge,
		nats.ErrAuthorization:        provider.ErrorUnauthorized,
	}
	for err, want := range cases {
		out := p.normalize(ctx, err)
		assert.Equal(t, want, out.ErrorCode, err.Error())
		assert.False(t, out.Success)
	}
}

func TestPlatformAndLimits(t *testing.T) {
	p := newTestProvider()
	assert.Equal(t, push.PlatformNATS, p.Platform())
	assert.Equal(t, maxPayloadBytes, p.MaxPayloadBytes())

	health := p.HealthCheck(context.Background())
	assert.Equal(t, "down", health.Status)
}
