package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/catalog"
	generationdomain "github.com/restyleworks/restyle/internal/generation/domain"
	ledgerdomain "github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/observability/metrics"
	"github.com/restyleworks/restyle/internal/unlock/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    generationdomain.Repository
	Ledger  ledgerdomain.Service
	Catalog *catalog.Holder
	Metrics *metrics.Metrics `optional:"true"`
}

type unlockService struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    generationdomain.Repository
	ledger  ledgerdomain.Service
	catalog *catalog.Holder
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &unlockService{
		db:      p.DB,
		log:     p.Log.Named("unlock.service"),
		repo:    p.Repo,
		ledger:  p.Ledger,
		catalog: p.Catalog,
		metrics: p.Metrics,
	}
}

func (s *unlockService) UnlockWithCredit(ctx context.Context, userID, generationID snowflake.ID) (domain.Result, error) {
	gen, err := s.repo.FindByID(ctx, s.db, generationID)
	if err != nil {
		return domain.Result{}, err
	}
	if gen.UserID != userID {
		return domain.Result{}, generationdomain.ErrForbidden
	}
	if gen.Status != generationdomain.StatusCompleted {
		return domain.Result{}, domain.ErrNotCompleted
	}

	// Flag flip and debit commit together: a crash between the two cannot
	// give the unlock away or charge without unlocking. The conditional
	// flip is the idempotency gate for retries.
	cost := s.catalog.Get().HDUnlock.CreditCost
	var result domain.Result
	err = s.db.Transaction(func(tx *gorm.DB) error {
		applied, txErr := s.repo.MarkUnlocked(ctx, tx, generationID, nil)
		if txErr != nil {
			return txErr
		}
		if !applied {
			result = domain.Result{GenerationID: generationID, AlreadyUnlocked: true}
			return nil
		}
		balance, txErr := s.ledger.DebitTx(ctx, tx, ledgerdomain.DebitRequest{
			UserID:       userID,
			Amount:       cost,
			Type:         ledgerdomain.TypeHDUnlock,
			Description:  fmt.Sprintf("hd unlock generation %d", generationID),
			GenerationID: &generationID,
		})
		if txErr != nil {
			return txErr
		}
		result = domain.Result{GenerationID: generationID, Balance: balance}
		return nil
	})
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrDuplicateCharge) {
			// The charge already exists but the flag rolled back with the
			// rest of the transaction; flip it on its own so the paid-for
			// unlock is delivered.
			if _, mErr := s.repo.MarkUnlocked(ctx, s.db, generationID, nil); mErr != nil {
				return domain.Result{}, mErr
			}
			return domain.Result{GenerationID: generationID, AlreadyUnlocked: true}, nil
		}
		return domain.Result{}, err
	}
	if result.AlreadyUnlocked {
		return result, nil
	}

	s.metrics.RecordHDUnlock(ctx, "credit")
	s.log.Info("hd unlocked with credits",
		zap.Int64("generation_id", int64(generationID)),
		zap.Int64("user_id", int64(userID)),
		zap.Int64("cost", cost),
	)
	return result, nil
}

func (s *unlockService) UnlockWithPayment(ctx context.Context, generationID snowflake.ID, externalRef string) (domain.Result, error) {
	gen, err := s.repo.FindByID(ctx, s.db, generationID)
	if err != nil {
		return domain.Result{}, err
	}
	if gen.Status != generationdomain.StatusCompleted {
		return domain.Result{}, domain.ErrNotCompleted
	}

	applied, err := s.repo.MarkUnlocked(ctx, s.db, generationID, &externalRef)
	if err != nil {
		return domain.Result{}, err
	}
	if !applied {
		return domain.Result{GenerationID: generationID, AlreadyUnlocked: true}, nil
	}

	s.metrics.RecordHDUnlock(ctx, "payment")
	s.log.Info("hd unlocked with payment",
		zap.Int64("generation_id", int64(generationID)),
		zap.Int64("user_id", int64(gen.UserID)),
		zap.String("external_ref", externalRef),
	)
	return domain.Result{GenerationID: generationID}, nil
}
