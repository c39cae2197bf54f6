package domain

import (
	"context"
	"net/http"

	"github.com/bwmarrin/snowflake"
)

// WebhookOutcome describes what a webhook delivery produced. Ignored and
// duplicate deliveries are acknowledged without side effects.
type WebhookOutcome struct {
	Processed bool   `json:"processed"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
	EventType string `json:"event_type,omitempty"`
}

// CheckoutKind selects what a checkout session pays for.
type CheckoutKind string

const (
	CheckoutCreditPack CheckoutKind = "credit_pack"
	CheckoutHDUnlock   CheckoutKind = "hd_unlock"
)

// CheckoutRequest starts a hosted checkout for a user.
type CheckoutRequest struct {
	UserID       snowflake.ID
	Kind         CheckoutKind
	PackSlug     string
	GenerationID snowflake.ID
}

// CheckoutSession is the hosted page the client redirects to.
type CheckoutSession struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

type Service interface {
	// ProcessWebhook verifies, records and applies an inbound payment
	// event. Replays of an already-processed event return Duplicate
	// without re-applying side effects.
	ProcessWebhook(ctx context.Context, payload []byte, headers http.Header) (WebhookOutcome, error)

	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)

	// ConfirmCheckout applies a paid session's side effects on behalf of a
	// returning client that beat the webhook. Safe to race with the
	// webhook path: both funnel into the same idempotent operations.
	ConfirmCheckout(ctx context.Context, userID snowflake.ID, sessionID string) (WebhookOutcome, error)
}

// Adapter verifies and parses provider webhook deliveries.
type Adapter interface {
	Verify(ctx context.Context, payload []byte, headers http.Header) error
	Parse(ctx context.Context, payload []byte) (*ParsedEvent, error)
}

// SessionMetadata travels with a checkout session through the provider.
type SessionMetadata struct {
	PurchaseType string
	UserID       snowflake.ID
	Credits      int64
	PackSlug     string
	GenerationID snowflake.ID
}

// CreateSessionInput describes a hosted checkout to create.
type CreateSessionInput struct {
	AmountCents int64
	Currency    string
	ProductName string
	Metadata    SessionMetadata
	SuccessURL  string
	CancelURL   string
}

// SessionStatus is a point-in-time view of a checkout session.
type SessionStatus struct {
	SessionID     string
	PaymentStatus string
	Metadata      SessionMetadata
}

// Paid reports whether the session's payment settled.
func (s SessionStatus) Paid() bool { return s.PaymentStatus == "paid" }

// CheckoutClient is the port to the payment provider's session API.
type CheckoutClient interface {
	CreateSession(ctx context.Context, in CreateSessionInput) (CheckoutSession, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionStatus, error)
}
