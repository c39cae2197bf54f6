package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// User is the local projection of an identity-provider account.
// CreditBalance is a cache; the credit transaction log is authoritative.
type User struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	Email         string       `gorm:"not null;uniqueIndex:ux_users_email" json:"email"`
	CreditBalance int64        `gorm:"not null;default:0" json:"credit_balance"`
	CreatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

var (
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrNotFound     = errors.New("user_not_found")
)
