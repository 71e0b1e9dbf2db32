package push

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxEncodedBytes is the conservative cross-provider payload bound. A
	// payload must fit the tightest limit among the providers it could be
	// routed to before any network call happens; 4 KB is the FCM data limit
	// and the smallest among the supported transports.
	MaxEncodedBytes = 4096

	// DefaultTTLSeconds is applied when a caller leaves TTLSeconds unset.
	DefaultTTLSeconds = 300
)

var validate = validator.New()

// Payload is one transport-agnostic logical notification. It is immutable
// once validated; the routing engine copies it before shrinking.
type Payload struct {
	Title       string            `json:"title" validate:"required,max=256"`
	Body        string            `json:"body" validate:"max=2048"`
	Data        map[string]string `json:"data,omitempty"`
	Priority    Priority          `json:"priority,omitempty" validate:"omitempty,oneof=low normal high critical"`
	TTLSeconds  int               `json:"ttl_seconds,omitempty" validate:"gte=0"`
	CollapseKey string            `json:"collapse_key,omitempty" validate:"max=64"`
	// DownloadURL is the optional shrink reference: when the payload is too
	// large for a provider, Data is replaced by a single pointer to this URL.
	DownloadURL string `json:"download_url,omitempty" validate:"omitempty,url"`
}

// Validate checks field constraints and the serialized size bound. It must be
// called (and pass) before a payload reaches any provider.
func (p *Payload) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if size := p.EncodedSize(); size > MaxEncodedBytes {
		return fmt.Errorf("payload size %d exceeds %d byte limit", size, MaxEncodedBytes)
	}
	return nil
}

// EncodedSize returns the serialized size of the parts every transport
// carries: title, body and the data map as JSON.
func (p *Payload) EncodedSize() int {
	size := len(p.Title) + len(p.Body)
	if len(p.Data) > 0 {
		// Marshal of map[string]string cannot fail.
		raw, _ := json.Marshal(p.Data)
		size += len(raw)
	}
	return size
}

// TTL returns the effective time-to-live in seconds.
func (p *Payload) TTL() int {
	if p.TTLSeconds <= 0 {
		return DefaultTTLSeconds
	}
	return p.TTLSeconds
}

// Shrunk returns a copy whose data map was collapsed to a single download
// reference. The second return is false when no DownloadURL was supplied and
// shrinking is not possible.
func (p *Payload) Shrunk() (*Payload, bool) {
	if p.DownloadURL == "" {
		return nil, false
	}
	out := *p
	out.Data = map[string]string{"download_url": p.DownloadURL}
	return &out, true
}
