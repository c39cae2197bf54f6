package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/config"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Config config.Config
	Repo   domain.Repository
	Ledger ledgerdomain.Service
}

type userService struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        domain.Repository
	ledger      ledgerdomain.Service
	signupBonus int64
}

func New(p Params) domain.Service {
	return &userService{
		db:          p.DB,
		log:         p.Log.Named("user.service"),
		repo:        p.Repo,
		ledger:      p.Ledger,
		signupBonus: p.Config.SignupBonus,
	}
}

func (s *userService) EnsureAccount(ctx context.Context, id snowflake.ID, email string) (*domain.User, error) {
	if id == 0 {
		return nil, domain.ErrInvalidUser
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrInvalidEmail
	}

	now := time.Now().UTC()
	inserted, err := s.repo.Ensure(ctx, s.db, &domain.User{
		ID:        id,
		Email:     email,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, err
	}

	if inserted && s.signupBonus > 0 {
		// The external_ref makes the grant safe against two first requests
		// racing for the same account.
		ref := fmt.Sprintf("signup_bonus:%d", id)
		if _, err := s.ledger.Credit(ctx, ledgerdomain.CreditRequest{
			UserID:      id,
			Amount:      s.signupBonus,
			Type:        ledgerdomain.TypeBonus,
			Description: "signup bonus",
			ExternalRef: &ref,
		}); err != nil {
			return nil, err
		}
		s.log.Info("account created",
			zap.Int64("user_id", int64(id)),
			zap.Int64("signup_bonus", s.signupBonus),
		)
	}

	return s.repo.FindByID(ctx, s.db, id)
}

func (s *userService) Get(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	return s.repo.FindByID(ctx, s.db, id)
}
