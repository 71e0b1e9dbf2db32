// Package ledger owns the durable, append-only record of every dispatch
// attempt and the acknowledgment path that closes the loop with the device.
package ledger

import (
	"errors"
	"time"

	"github.com/relayhq/pushcore/internal/push"
)

// Status is the lifecycle state of a delivery record. Transitions only run
// forward: SENT → DELIVERED | FAILED | EXPIRED.
type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
)

var (
	// ErrUnknownMessage is returned when an acknowledgment references a
	// message this server never sent or that was archived. Reported to the
	// caller, never fatal.
	ErrUnknownMessage = errors.New("unknown message")

	// ErrNotFound is the store-level miss.
	ErrNotFound = errors.New("record not found")
)

// Record is one dispatch attempt. Created synchronously with the provider
// call and never deleted; later writers only move it to a terminal status.
type Record struct {
	MessageID    string        `json:"message_id"`
	DeviceID     string        `json:"device_id"`
	SiteID       string        `json:"site_id,omitempty"`
	JobID        string        `json:"job_id,omitempty"`
	Provider     push.Platform `json:"provider"`
	AttemptIndex int           `json:"attempt_index"`
	Status       Status        `json:"status"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	TTLSeconds   int           `json:"ttl_seconds"`
	SentAt       time.Time     `json:"sent_at"`
	ReceivedAt   *time.Time    `json:"received_at,omitempty"`
	LatencyMs    *int64        `json:"latency_ms,omitempty"`
}

// ExpiresAt is the moment this record becomes eligible for the sweeper.
func (r *Record) ExpiresAt() time.Time {
	return r.SentAt.Add(time.Duration(r.TTLSeconds) * time.Second)
}

// Filter scopes ledger queries. Zero values mean "no constraint".
type Filter struct {
	From     time.Time
	To       time.Time
	Provider push.Platform
	SiteID   string
	DeviceID string
}

// Matches reports whether a record falls inside the filter.
func (f Filter) Matches(r *Record) bool {
	if !f.From.IsZero() && r.SentAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && r.SentAt.After(f.To) {
		return false
	}
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.SiteID != "" && r.SiteID != f.SiteID {
		return false
	}
	if f.DeviceID != "" && r.DeviceID != f.DeviceID {
		return false
	}
	return true
}
