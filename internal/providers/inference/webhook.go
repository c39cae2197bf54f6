package inference

import (
	"encoding/json"
	"errors"
)

// ParseWebhookPayload decodes a provider push notification into a job id and
// a normalized state. The payload shape matches the prediction resource.
func ParseWebhookPayload(body []byte) (string, JobState, error) {
	var p predictionResponse
	if err := json.Unmarshal(body, &p); err != nil {
		return "", JobState{}, err
	}
	if p.ID == "" {
		return "", JobState{}, errors.New("webhook payload missing prediction id")
	}
	return p.ID, stateFromPrediction(p), nil
}
