package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// TerminalUpdate carries the fields written alongside a terminal transition.
type TerminalUpdate struct {
	OutputImageKey *string
	ErrorMessage   *string
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, gen *Generation) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Generation, error)
	FindByProviderJobID(ctx context.Context, db *gorm.DB, jobID string) (*Generation, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]Generation, error)

	// SetProcessing records the provider job id and moves pending into
	// processing. Applied is false when the record already left pending.
	SetProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, providerJobID string) (applied bool, err error)

	// Finalize moves a non-terminal record into completed or failed.
	// Applied is false when the record is already terminal; callers rely on
	// this to run terminal side effects exactly once.
	Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, status Status, update TerminalUpdate) (applied bool, err error)

	// MarkUnlocked flips hd_unlocked and records the payment reference for
	// card unlocks, returning false when the flag already was set.
	MarkUnlocked(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef *string) (applied bool, err error)
}
