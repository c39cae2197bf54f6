package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// DebitRequest removes credits from a user's balance.
type DebitRequest struct {
	UserID       snowflake.ID
	Amount       int64
	Type         TransactionType
	Description  string
	GenerationID *snowflake.ID
}

// CreditRequest adds credits to a user's balance.
type CreditRequest struct {
	UserID       snowflake.ID
	Amount       int64
	Type         TransactionType
	Description  string
	ExternalRef  *string
	GenerationID *snowflake.ID
}

// CreditResult reports the balance after a credit and whether the entry was
// newly applied or deduplicated by its idempotency key.
type CreditResult struct {
	Balance int64
	Applied bool
}

type Service interface {
	// GetBalance sums the user's transaction log.
	GetBalance(ctx context.Context, userID snowflake.ID) (int64, error)
	// Debit atomically appends a negative transaction, failing when the
	// balance would go negative. Returns the new balance.
	Debit(ctx context.Context, req DebitRequest) (int64, error)
	// DebitTx is Debit running inside the caller's transaction.
	DebitTx(ctx context.Context, tx *gorm.DB, req DebitRequest) (int64, error)
	// Credit appends a positive transaction. When ExternalRef or
	// (Type, GenerationID) already exist the call is a no-op.
	Credit(ctx context.Context, req CreditRequest) (CreditResult, error)
	// History returns the user's transactions, newest first.
	History(ctx context.Context, userID snowflake.ID, limit int) ([]CreditTransaction, error)
}

var (
	ErrInvalidUser         = errors.New("invalid_user")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidType         = errors.New("invalid_transaction_type")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrDuplicateCharge     = errors.New("duplicate_charge")
)
