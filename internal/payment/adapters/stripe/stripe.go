package stripe

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
)

// Adapter verifies Stripe webhook signatures and parses checkout completion
// events into normalized payment events.
type Adapter struct {
	webhookSecret string
}

func NewAdapter(webhookSecret string) *Adapter {
	return &Adapter{webhookSecret: strings.TrimSpace(webhookSecret)}
}

func (a *Adapter) Verify(ctx context.Context, payload []byte, headers http.Header) error {
	if a.webhookSecret == "" {
		return paymentdomain.ErrInvalidSignature
	}
	sigHeader := strings.TrimSpace(headers.Get("Stripe-Signature"))
	if sigHeader == "" {
		return paymentdomain.ErrInvalidSignature
	}

	timestamp, signatures, err := parseSignatureHeader(sigHeader)
	if err != nil {
		return paymentdomain.ErrInvalidSignature
	}

	signedPayload := fmt.Sprintf("%s.%s", timestamp, string(payload))
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	_, _ = mac.Write([]byte(signedPayload))
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, signature := range signatures {
		if hmac.Equal([]byte(signature), []byte(expected)) {
			return nil
		}
	}

	return paymentdomain.ErrInvalidSignature
}

func (a *Adapter) Parse(ctx context.Context, payload []byte) (*paymentdomain.ParsedEvent, error) {
	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}

	switch strings.TrimSpace(event.Type) {
	case "checkout.session.completed":
		return a.parseCheckoutSession(event, payload)
	default:
		return nil, paymentdomain.ErrEventIgnored
	}
}

type stripeEvent struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Created int64           `json:"created"`
	Data    stripeEventData `json:"data"`
}

type stripeEventData struct {
	Object json.RawMessage `json:"object"`
}

type stripeSession struct {
	ID            string         `json:"id"`
	AmountTotal   int64          `json:"amount_total"`
	Currency      string         `json:"currency"`
	PaymentStatus string         `json:"payment_status"`
	Created       int64          `json:"created"`
	Metadata      map[string]any `json:"metadata"`
}

func (a *Adapter) parseCheckoutSession(event stripeEvent, payload []byte) (*paymentdomain.ParsedEvent, error) {
	var session stripeSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return nil, paymentdomain.ErrInvalidPayload
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, paymentdomain.ErrInvalidEvent
	}
	// Async payment methods complete the session before the money moves.
	if session.PaymentStatus != "" && session.PaymentStatus != "paid" {
		return nil, paymentdomain.ErrEventIgnored
	}

	meta, err := MetadataFromMap(session.Metadata)
	if err != nil {
		return nil, err
	}

	return &paymentdomain.ParsedEvent{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		Type:            strings.TrimSpace(event.Type),
		SessionID:       session.ID,
		PurchaseType:    meta.PurchaseType,
		UserID:          meta.UserID,
		Credits:         meta.Credits,
		PackSlug:        meta.PackSlug,
		GenerationID:    meta.GenerationID,
		AmountCents:     session.AmountTotal,
		Currency:        strings.ToUpper(strings.TrimSpace(session.Currency)),
		OccurredAt:      timestamp(session.Created, event.Created),
		RawPayload:      payload,
	}, nil
}

// MetadataFromMap reads the session metadata written at checkout creation.
// Stripe round-trips metadata as strings but decoded JSON may carry numbers.
func MetadataFromMap(metadata map[string]any) (paymentdomain.SessionMetadata, error) {
	purchaseType := readMetadataValue(metadata, "type")
	switch purchaseType {
	case paymentdomain.PurchaseTypeCredits, paymentdomain.PurchaseTypeHDUnlock:
	default:
		return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
	}

	userRaw := readMetadataValue(metadata, "user_id")
	userID, err := snowflake.ParseString(userRaw)
	if err != nil || userID == 0 {
		return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
	}

	meta := paymentdomain.SessionMetadata{
		PurchaseType: purchaseType,
		UserID:       userID,
		PackSlug:     readMetadataValue(metadata, "pack"),
	}

	if creditsRaw := readMetadataValue(metadata, "credits"); creditsRaw != "" {
		credits, err := strconv.ParseInt(creditsRaw, 10, 64)
		if err != nil || credits <= 0 {
			return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
		}
		meta.Credits = credits
	}

	if genRaw := readMetadataValue(metadata, "generation_id"); genRaw != "" {
		genID, err := snowflake.ParseString(genRaw)
		if err != nil {
			return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
		}
		meta.GenerationID = genID
	}

	switch purchaseType {
	case paymentdomain.PurchaseTypeCredits:
		if meta.Credits <= 0 {
			return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
		}
	case paymentdomain.PurchaseTypeHDUnlock:
		if meta.GenerationID == 0 {
			return paymentdomain.SessionMetadata{}, paymentdomain.ErrInvalidMetadata
		}
	}
	return meta, nil
}

func parseSignatureHeader(header string) (string, []string, error) {
	parts := strings.Split(header, ",")
	var timestamp string
	signatures := []string{}
	for _, part := range parts {
		piece := strings.TrimSpace(part)
		if piece == "" {
			continue
		}
		keyValue := strings.SplitN(piece, "=", 2)
		if len(keyValue) != 2 {
			continue
		}
		key := strings.TrimSpace(keyValue[0])
		value := strings.TrimSpace(keyValue[1])
		if key == "t" {
			timestamp = value
		}
		if key == "v1" {
			signatures = append(signatures, value)
		}
	}
	if timestamp == "" || len(signatures) == 0 {
		return "", nil, errors.New("invalid_signature")
	}
	return timestamp, signatures, nil
}

func timestamp(primary int64, fallback int64) time.Time {
	value := primary
	if value == 0 {
		value = fallback
	}
	if value == 0 {
		return time.Now().UTC()
	}
	return time.Unix(value, 0).UTC()
}

func readMetadataValue(metadata map[string]any, key string) string {
	if metadata == nil {
		return ""
	}
	value, ok := metadata[key]
	if !ok {
		return ""
	}
	switch cast := value.(type) {
	case string:
		return strings.TrimSpace(cast)
	case float64:
		if cast == 0 {
			return ""
		}
		return strconv.FormatInt(int64(cast), 10)
	case json.Number:
		return cast.String()
	case int64:
		return strconv.FormatInt(cast, 10)
	case int:
		return strconv.Itoa(cast)
	}
	return ""
}
