package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// TransactionType classifies ledger postings.
type TransactionType string

const (
	TypePurchase   TransactionType = "purchase"
	TypeGeneration TransactionType = "generation"
	TypeRefund     TransactionType = "refund"
	TypeBonus      TransactionType = "bonus"
	TypeHDUnlock   TransactionType = "hd_unlock"
)

// CreditTransaction is an immutable ledger entry. Positive amounts credit
// the user, negative amounts debit. The sum of a user's transactions is the
// authoritative balance.
//
// The (type, generation_id) unique index guarantees at most one charge and
// one refund per generation; the external_ref unique index guarantees one
// credit per checkout session or bonus grant.
type CreditTransaction struct {
	ID           snowflake.ID    `gorm:"primaryKey" json:"id"`
	UserID       snowflake.ID    `gorm:"not null;index" json:"user_id"`
	Amount       int64           `gorm:"not null" json:"amount"`
	Type         TransactionType `gorm:"type:text;not null;uniqueIndex:ux_credit_tx_type_generation,priority:1" json:"type"`
	Description  string          `gorm:"type:text;not null" json:"description"`
	ExternalRef  *string         `gorm:"uniqueIndex:ux_credit_tx_external_ref" json:"external_ref,omitempty"`
	GenerationID *snowflake.ID   `gorm:"uniqueIndex:ux_credit_tx_type_generation,priority:2" json:"generation_id,omitempty"`
	CreatedAt    time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (CreditTransaction) TableName() string { return "credit_transactions" }
