package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// SubmitRequest starts a new generation for a user.
type SubmitRequest struct {
	UserID        snowflake.ID
	StyleSlug     string
	RoomType      string
	InputImageKey string
}

// View is a generation enriched with pre-signed image URLs for clients.
type View struct {
	Generation
	InputImageURL  string `json:"input_image_url,omitempty"`
	OutputImageURL string `json:"output_image_url,omitempty"`
	// HDImageURL is only populated once the generation is unlocked.
	HDImageURL string `json:"hd_image_url,omitempty"`
}

// ReconcileInput is the normalized provider signal fed to Reconcile by both
// the webhook and the poll path.
type ReconcileInput struct {
	GenerationID snowflake.ID
	Succeeded    bool
	Failed       bool
	OutputURL    string
	ProviderErr  string
}

type Service interface {
	// Submit validates the request, debits the style's cost and dispatches
	// the job to the provider. The debit and the pending record commit in
	// one transaction; provider submission failure refunds the debit.
	Submit(ctx context.Context, req SubmitRequest) (*View, error)

	// Get returns the generation with fresh pre-signed URLs. When the
	// record is still in flight the provider is polled and the result is
	// reconciled before returning.
	Get(ctx context.Context, userID, id snowflake.ID) (*View, error)

	List(ctx context.Context, userID snowflake.ID, limit int) ([]View, error)

	// Reconcile applies a provider signal to the record. Records already
	// in a terminal state are left untouched, which makes the webhook and
	// poll paths safe to race.
	Reconcile(ctx context.Context, in ReconcileInput) error

	// ReconcileByJobID resolves the provider job id first; used by the
	// provider webhook which does not know generation ids.
	ReconcileByJobID(ctx context.Context, jobID string, in ReconcileInput) error

	// Cancel asks the provider to stop the job and fails the record,
	// refunding through the same path as provider failure.
	Cancel(ctx context.Context, userID, id snowflake.ID) (*View, error)
}

var (
	ErrInvalidRequest = errors.New("invalid_generation_request")
	ErrNotFound       = errors.New("generation_not_found")
	ErrForbidden      = errors.New("generation_forbidden")
	ErrInputMissing   = errors.New("input_image_not_found")
	ErrNotCancellable = errors.New("generation_not_cancellable")
)
