package inference

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]JobStatus{
		"starting":   StatusStarting,
		"queued":     StatusStarting,
		"Pending":    StatusStarting,
		"processing": StatusProcessing,
		"running":    StatusProcessing,
		"":           StatusProcessing,
		"succeeded":  StatusSucceeded,
		"COMPLETED":  StatusSucceeded,
		"failed":     StatusFailed,
		"canceled":   StatusFailed,
		"cancelled":  StatusFailed,
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestStateFromPrediction_OutputShapes(t *testing.T) {
	// Bare string output.
	state := stateFromPrediction(predictionResponse{
		Status: "succeeded",
		Output: json.RawMessage(`"https://cdn.example.com/out.png"`),
	})
	assert.Equal(t, StatusSucceeded, state.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", state.OutputURL)

	// Array output keeps the first URL.
	state = stateFromPrediction(predictionResponse{
		Status: "succeeded",
		Output: json.RawMessage(`["https://cdn.example.com/a.png","https://cdn.example.com/b.png"]`),
	})
	assert.Equal(t, "https://cdn.example.com/a.png", state.OutputURL)

	// Success without output downgrades to failure.
	state = stateFromPrediction(predictionResponse{Status: "succeeded"})
	assert.Equal(t, StatusFailed, state.Status)
	assert.NotEmpty(t, state.Err)

	// Failure carries the provider error detail.
	state = stateFromPrediction(predictionResponse{
		Status: "failed",
		Error:  "NSFW content detected",
	})
	assert.Equal(t, StatusFailed, state.Status)
	assert.Equal(t, "NSFW content detected", state.Err)
}

func TestParseWebhookPayload(t *testing.T) {
	jobID, state, err := ParseWebhookPayload([]byte(`{
		"id": "pred_123",
		"status": "succeeded",
		"output": ["https://cdn.example.com/out.png"]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "pred_123", jobID)
	assert.Equal(t, StatusSucceeded, state.Status)
	assert.Equal(t, "https://cdn.example.com/out.png", state.OutputURL)

	_, _, err = ParseWebhookPayload([]byte(`{"status": "succeeded"}`))
	assert.Error(t, err)

	_, _, err = ParseWebhookPayload([]byte(`not json`))
	assert.Error(t, err)
}
