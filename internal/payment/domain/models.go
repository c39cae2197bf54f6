package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Event metadata types set on checkout sessions at creation time and read
// back when the provider delivers the completion webhook.
const (
	PurchaseTypeCredits  = "credits_purchase"
	PurchaseTypeHDUnlock = "hd_unlock"
)

// EventRecord stores every webhook delivery. The (provider, provider_event_id)
// unique index is the replay guard: redelivered events find their prior row.
type EventRecord struct {
	ID              snowflake.ID   `gorm:"primaryKey" json:"id"`
	Provider        string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:1" json:"provider"`
	ProviderEventID string         `gorm:"type:text;not null;uniqueIndex:ux_payment_events_provider_event,priority:2" json:"provider_event_id"`
	EventType       string         `gorm:"type:text;not null" json:"event_type"`
	Payload         datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	ReceivedAt      time.Time      `gorm:"not null" json:"received_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
}

// TableName sets the database table name.
func (EventRecord) TableName() string { return "payment_events" }

// ParsedEvent is a verified, normalized webhook event.
type ParsedEvent struct {
	Provider        string
	ProviderEventID string
	Type            string
	SessionID       string
	PurchaseType    string
	UserID          snowflake.ID
	Credits         int64
	PackSlug        string
	GenerationID    snowflake.ID
	AmountCents     int64
	Currency        string
	OccurredAt      time.Time
	RawPayload      []byte
}

var (
	ErrInvalidProvider  = errors.New("invalid_provider")
	ErrInvalidSignature = errors.New("invalid_signature")
	ErrInvalidPayload   = errors.New("invalid_payload")
	ErrInvalidEvent     = errors.New("invalid_event")
	ErrInvalidMetadata  = errors.New("invalid_event_metadata")
	ErrEventIgnored     = errors.New("event_ignored")
	ErrSessionNotPaid   = errors.New("session_not_paid")
	ErrCheckout         = errors.New("checkout_failed")
)
