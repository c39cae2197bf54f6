package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	paymentdomain "github.com/restyleworks/restyle/internal/payment/domain"
)

const apiBaseURL = "https://api.stripe.com"

// Client drives Stripe's hosted checkout session API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

func NewClient(secretKey string) *Client {
	return &Client{
		baseURL:    apiBaseURL,
		secretKey:  strings.TrimSpace(secretKey),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// NewClientWithBaseURL points the client at a stub server, used in tests.
func NewClientWithBaseURL(secretKey, baseURL string) *Client {
	c := NewClient(secretKey)
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) CreateSession(ctx context.Context, in paymentdomain.CreateSessionInput) (paymentdomain.CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", in.SuccessURL)
	form.Set("cancel_url", in.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(in.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(in.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", in.ProductName)
	for key, value := range metadataForm(in.Metadata) {
		form.Set(fmt.Sprintf("metadata[%s]", key), value)
	}

	var session sessionResource
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, &session); err != nil {
		return paymentdomain.CheckoutSession{}, err
	}
	if session.ID == "" || session.URL == "" {
		return paymentdomain.CheckoutSession{}, fmt.Errorf("%w: incomplete session response", paymentdomain.ErrCheckout)
	}
	return paymentdomain.CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

func (c *Client) RetrieveSession(ctx context.Context, sessionID string) (paymentdomain.SessionStatus, error) {
	var session sessionResource
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &session); err != nil {
		return paymentdomain.SessionStatus{}, err
	}
	meta, err := MetadataFromMap(session.Metadata)
	if err != nil {
		return paymentdomain.SessionStatus{}, err
	}
	return paymentdomain.SessionStatus{
		SessionID:     session.ID,
		PaymentStatus: session.PaymentStatus,
		Metadata:      meta,
	}, nil
}

type sessionResource struct {
	ID            string         `json:"id"`
	URL           string         `json:"url"`
	PaymentStatus string         `json:"payment_status"`
	Metadata      map[string]any `json:"metadata"`
}

func metadataForm(meta paymentdomain.SessionMetadata) map[string]string {
	out := map[string]string{
		"type":    meta.PurchaseType,
		"user_id": meta.UserID.String(),
	}
	if meta.Credits > 0 {
		out["credits"] = strconv.FormatInt(meta.Credits, 10)
	}
	if meta.PackSlug != "" {
		out["pack"] = meta.PackSlug
	}
	if meta.GenerationID != 0 {
		out["generation_id"] = meta.GenerationID.String()
	}
	return out
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out any) error {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.secretKey, "")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", paymentdomain.ErrCheckout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Error.Message != "" {
			return fmt.Errorf("%w: %s", paymentdomain.ErrCheckout, errResp.Error.Message)
		}
		return fmt.Errorf("%w: %s", paymentdomain.ErrCheckout, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
