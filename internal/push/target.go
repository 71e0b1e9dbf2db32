package push

// DeviceTarget identifies a delivery destination. It is long-lived: created
// at device registration and updated on token rotation or capability change.
type DeviceTarget struct {
	DeviceID string `json:"device_id"`
	SiteID   string `json:"site_id,omitempty"`
	// Platform declares which provider owns Token.
	Platform Platform `json:"platform"`
	// Token is the provider-specific address: a registration token for FCM,
	// an inbox subject for NATS, an endpoint ARN for SNS.
	Token string `json:"token"`
	// Tokens carries per-platform addresses for devices reachable over more
	// than one transport, keyed by platform. Token is the address for
	// Platform and takes precedence when both are set.
	Tokens map[Platform]string `json:"tokens,omitempty"`
	// Capabilities lists the platforms this physical device can reach,
	// ordered by preference. The first entry is the primary transport.
	Capabilities []Platform `json:"capabilities"`
	Active       bool       `json:"active"`
}

// TokenFor returns the address to use for the given platform.
func (t *DeviceTarget) TokenFor(platform Platform) string {
	if platform == t.Platform && t.Token != "" {
		return t.Token
	}
	if t.Tokens != nil {
		return t.Tokens[platform]
	}
	return ""
}
