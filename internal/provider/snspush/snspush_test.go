package snspush

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relayhq/pushcore/internal/logger"
	"github.com/relayhq/pushcore/internal/provider"
	"github.com/relayhq/pushcore/internal/push"
)

func newTestProvider() *Provider {
	return New(Config{Region: "eu-central-1"}, logger.New(logger.FromConfig("error", "text")))
}

func TestValidateToken(t *testing.T) {
	p := newTestProvider()

	assert.True(t, p.ValidateToken("arn:aws:sns:eu-central-1:123456789012:endpoint/APNS/myapp/uuid"))
	assert.False(t, p.ValidateToken(""))
	assert.False(t, p.ValidateToken("arn:aws:sns:eu-central-1:123456789012:myapp"))
	assert.False(t, p.ValidateToken("arn:aws:sqs:eu-central-1:123456789012:endpoint/x"))
	assert.False(t, p.ValidateToken("fcm-registration-token"))
}

func TestSendBeforeInitialize(t *testing.T) {
	p := newTestProvider()

	out := p.Send(context.Background(), push.DeviceTarget{
		Platform: push.PlatformSNS,
		Token:    "arn:aws:sns:eu-central-1:123456789012:endpoint/APNS/myapp/uuid",
	}, &push.Payload{Title: "x"})

	assert.Equal(t, provider.ErrorServiceUnavailable, out.ErrorCode)
}

func TestBuildMessage(t *testing.T) {
	msg, err := buildMessage(&push.Payload{
		Title: "Alert",
		Body:  "Line down",
		Data:  map[string]string{"message_id": "m-1"},
	})
	require.NoError(t, err)

	var wrapper map[string]string
	require.NoError(t, json.Unmarshal([]byte(msg), &wrapper))
	assert.Equal(t, "Alert", wrapper["default"])
	require.Contains(t, wrapper, "APNS")
	assert.Equal(t, wrapper["APNS"], wrapper["APNS_SANDBOX"])

	var apns map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(wrapper["APNS"]), &apns))
	aps := apns["aps"].(map[string]interface{})
	alert := aps["alert"].(map[string]interface{})
	assert.Equal(t, "Alert", alert["title"])
	assert.Equal(t, "Line down", alert["body"])
	// Custom data rides at the top level next to aps.
	assert.Equal(t, "m-1", apns["message_id"])
}

func TestAttributes(t *testing.T) {
	t.Run("ttl always present", func(t *testing.T) {
		attrs := attributes(&push.Payload{Title: "x", TTLSeconds: 120})
		require.Contains(t, attrs, "AWS.SNS.MOBILE.APNS.TTL")
		assert.Equal(t, "120", *attrs["AWS.SNS.MOBILE.APNS.TTL"].StringValue)
		assert.NotContains(t, attrs, "AWS.SNS.MOBILE.APNS.PRIORITY")
	})

	t.Run("high priority sets apns priority 10", func(t *testing.T) {
		attrs := attributes(&push.Payload{Title: "x", Priority: push.PriorityHigh})
		require.Contains(t, attrs, "AWS.SNS.MOBILE.APNS.PRIORITY")
		assert.Equal(t, "10", *attrs["AWS.SNS.MOBILE.APNS.PRIORITY"].StringValue)
	})

	t.Run("collapse key mapped", func(t *testing.T) {
		attrs := attributes(&push.Payload{Title: "x", CollapseKey: "cfg-update"})
		require.Contains(t, attrs, "AWS.SNS.MOBILE.APNS.COLLAPSE_ID")
		assert.Equal(t, "cfg-update", *attrs["AWS.SNS.MOBILE.APNS.COLLAPSE_ID"].StringValue)
	})
}

func TestNormalize(t *testing.T) {
	p := newTestProvider()
	ctx := context.Background()

	cases := []struct {
		err  error
		want provider.ErrorCode
	}{
		{&types.EndpointDisabledException{}, provider.ErrorTargetExpired},
		{&types.PlatformApplicationDisabledException{}, provider.ErrorTargetExpired},
		{&types.InvalidParameterException{}, provider.ErrorInvalidTarget},
		{&types.ThrottledException{}, provider.ErrorThrottled},
		{&types.AuthorizationErrorException{}, provider.ErrorUnauthorized},
		{&types.InternalErrorException{}, provider.ErrorServiceUnavailable},
	}
	for _, tc := range cases {
		out := p.normalize(ctx, tc.err)
		assert.Equal(t, tc.want, out.ErrorCode, "%T", tc.err)
	}

	throttled := p.normalize(ctx, &types.ThrottledException{})
	assert.Equal(t, 60, throttled.RetryAfterSeconds)
}
