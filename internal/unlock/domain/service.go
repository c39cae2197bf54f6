package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Result reports the outcome of an unlock attempt. AlreadyUnlocked is true
// when the generation had been unlocked before this call, in which case no
// charge was made.
type Result struct {
	GenerationID    snowflake.ID `json:"generation_id"`
	AlreadyUnlocked bool         `json:"already_unlocked"`
	// Balance is the credit balance after a credit unlock; zero for
	// payment unlocks.
	Balance int64 `json:"balance,omitempty"`
}

type Service interface {
	// UnlockWithCredit charges the catalog's HD unlock cost and flips the
	// generation's unlocked flag. Repeated calls are free no-ops.
	UnlockWithCredit(ctx context.Context, userID, generationID snowflake.ID) (Result, error)

	// UnlockWithPayment flips the unlocked flag after a verified card
	// payment. externalRef identifies the checkout session; repeated
	// deliveries of the same session are no-ops.
	UnlockWithPayment(ctx context.Context, generationID snowflake.ID, externalRef string) (Result, error)
}

var (
	ErrNotCompleted = errors.New("generation_not_completed")
)
