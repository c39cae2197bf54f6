package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ReplicateClient talks to a Replicate-compatible predictions API.
type ReplicateClient struct {
	baseURL    string
	token      string
	model      string
	webhookURL string
	httpClient *http.Client
	log        *zap.Logger
}

type ReplicateOptions struct {
	BaseURL string
	Token   string
	Model   string
	// WebhookURL, when set, is registered on each prediction so the
	// provider pushes terminal states instead of relying on polling alone.
	WebhookURL string
}

func NewReplicateClient(opts ReplicateOptions, log *zap.Logger) *ReplicateClient {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com"
	}
	return &ReplicateClient{
		baseURL:    baseURL,
		token:      opts.Token,
		model:      opts.Model,
		webhookURL: opts.WebhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log.Named("inference.replicate"),
	}
}

type predictionRequest struct {
	Version string         `json:"version,omitempty"`
	Input   map[string]any `json:"input"`
	Webhook string         `json:"webhook,omitempty"`
	Events  []string       `json:"webhook_events_filter,omitempty"`
}

type predictionResponse struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
}

func (c *ReplicateClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	payload := predictionRequest{
		Version: c.model,
		Input: map[string]any{
			"prompt": req.Prompt,
			"image":  req.ImageURL,
		},
	}
	if c.webhookURL != "" {
		payload.Webhook = c.webhookURL
		payload.Events = []string{"completed"}
	}

	var resp predictionResponse
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/predictions", payload, &resp)
	if err != nil {
		c.log.Warn("prediction submit failed", zap.Int("status", status), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrSubmit, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("%w: response missing prediction id", ErrSubmit)
	}
	return resp.ID, nil
}

func (c *ReplicateClient) CheckStatus(ctx context.Context, jobID string) (JobState, error) {
	var resp predictionResponse
	status, err := c.doJSON(ctx, http.MethodGet, "/v1/predictions/"+jobID, nil, &resp)
	if err != nil {
		if status == http.StatusNotFound {
			return JobState{}, ErrJobNotFound
		}
		return JobState{}, err
	}
	return stateFromPrediction(resp), nil
}

func (c *ReplicateClient) Cancel(ctx context.Context, jobID string) error {
	status, err := c.doJSON(ctx, http.MethodPost, "/v1/predictions/"+jobID+"/cancel", nil, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return ErrJobNotFound
		}
		return err
	}
	return nil
}

// stateFromPrediction normalizes a raw prediction payload. Output shows up
// either as a bare string or as an array of URLs depending on the model.
func stateFromPrediction(p predictionResponse) JobState {
	state := JobState{Status: NormalizeStatus(p.Status)}
	if state.Status == StatusSucceeded {
		state.OutputURL = firstOutputURL(p.Output)
		if state.OutputURL == "" {
			state.Status = StatusFailed
			state.Err = "prediction succeeded without output"
		}
	}
	if state.Status == StatusFailed && state.Err == "" && p.Error != nil {
		state.Err = fmt.Sprintf("%v", p.Error)
	}
	return state
}

func firstOutputURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return ""
}

func (c *ReplicateClient) doJSON(ctx context.Context, method, path string, payload any, out any) (int, error) {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var errResp struct {
			Detail string `json:"detail"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		if errResp.Detail != "" {
			return resp.StatusCode, fmt.Errorf("provider api error: %s", errResp.Detail)
		}
		return resp.StatusCode, fmt.Errorf("provider api error: %s", resp.Status)
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, err
	}
	return resp.StatusCode, nil
}
