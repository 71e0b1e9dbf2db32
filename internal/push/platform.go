package push

import "fmt"

// Platform identifies one downstream transport technology.
type Platform string

const (
	// PlatformFCM is Firebase Cloud Messaging (Android / iOS / web via Firebase).
	PlatformFCM Platform = "fcm"
	// PlatformNATS is the direct persistent-connection transport for devices
	// that cannot reach vendor push domains (restricted networks, stripped OS
	// images). Devices hold a long-lived subscription on their inbox subject.
	PlatformNATS Platform = "nats"
	// PlatformSNS is mobile push via AWS SNS platform endpoints (APNs et al).
	PlatformSNS Platform = "sns"
)

// ParsePlatform converts a wire string into a known Platform.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(s) {
	case PlatformFCM, PlatformNATS, PlatformSNS:
		return Platform(s), nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}

// Priority expresses delivery urgency to the transport.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityNormal   Priority = "normal"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)
