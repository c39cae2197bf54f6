package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// EnsureAccount creates the local account on first sight of an
	// authenticated caller and grants the signup bonus once.
	EnsureAccount(ctx context.Context, id snowflake.ID, email string) (*User, error)
	Get(ctx context.Context, id snowflake.ID) (*User, error)
}
