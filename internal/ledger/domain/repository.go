package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert appends a transaction row. Applied is false when an
	// idempotency key (external_ref or type+generation_id) already exists.
	Insert(ctx context.Context, db *gorm.DB, tx *CreditTransaction) (applied bool, err error)
	// AdjustBalance moves the cached balance by delta. When delta is
	// negative the update only applies while the balance stays >= 0;
	// applied reports whether a row changed.
	AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta int64) (applied bool, err error)
	SumByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error)
	ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]CreditTransaction, error)
	UserExists(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error)
}
