package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/ledger/domain"
	"github.com/restyleworks/restyle/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Node    *snowflake.Node
	Repo    domain.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type ledgerService struct {
	db      *gorm.DB
	log     *zap.Logger
	node    *snowflake.Node
	repo    domain.Repository
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	return &ledgerService{
		db:      p.DB,
		log:     p.Log.Named("ledger.service"),
		node:    p.Node,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

func (s *ledgerService) GetBalance(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	exists, err := s.repo.UserExists(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, domain.ErrUserNotFound
	}
	return s.repo.SumByUser(ctx, s.db, userID)
}

func (s *ledgerService) Debit(ctx context.Context, req domain.DebitRequest) (int64, error) {
	var balance int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		balance, txErr = s.DebitTx(ctx, tx, req)
		return txErr
	})
	return balance, err
}

func (s *ledgerService) DebitTx(ctx context.Context, tx *gorm.DB, req domain.DebitRequest) (int64, error) {
	if req.UserID == 0 {
		return 0, domain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	if req.Type != domain.TypeGeneration && req.Type != domain.TypeHDUnlock {
		return 0, domain.ErrInvalidType
	}

	applied, err := s.repo.AdjustBalance(ctx, tx, req.UserID, -req.Amount)
	if err != nil {
		return 0, err
	}
	if !applied {
		exists, err := s.repo.UserExists(ctx, tx, req.UserID)
		if err != nil {
			return 0, err
		}
		if !exists {
			return 0, domain.ErrUserNotFound
		}
		return 0, domain.ErrInsufficientCredits
	}

	entry := &domain.CreditTransaction{
		ID:           s.node.Generate(),
		UserID:       req.UserID,
		Amount:       -req.Amount,
		Type:         req.Type,
		Description:  req.Description,
		GenerationID: req.GenerationID,
		CreatedAt:    time.Now().UTC(),
	}
	inserted, err := s.repo.Insert(ctx, tx, entry)
	if err != nil {
		return 0, err
	}
	if !inserted {
		// Same generation already charged; roll the balance update back.
		return 0, domain.ErrDuplicateCharge
	}

	balance, err := s.repo.SumByUser(ctx, tx, req.UserID)
	if err != nil {
		return 0, err
	}

	s.metrics.RecordLedgerEntry(ctx, string(req.Type))
	s.log.Info("credits debited",
		zap.Int64("user_id", int64(req.UserID)),
		zap.Int64("amount", req.Amount),
		zap.String("type", string(req.Type)),
		zap.Int64("balance", balance),
	)
	return balance, nil
}

func (s *ledgerService) Credit(ctx context.Context, req domain.CreditRequest) (domain.CreditResult, error) {
	if req.UserID == 0 {
		return domain.CreditResult{}, domain.ErrInvalidUser
	}
	if req.Amount <= 0 {
		return domain.CreditResult{}, domain.ErrInvalidAmount
	}
	if req.Type != domain.TypePurchase && req.Type != domain.TypeRefund && req.Type != domain.TypeBonus {
		return domain.CreditResult{}, domain.ErrInvalidType
	}

	var result domain.CreditResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.repo.UserExists(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrUserNotFound
		}

		entry := &domain.CreditTransaction{
			ID:           s.node.Generate(),
			UserID:       req.UserID,
			Amount:       req.Amount,
			Type:         req.Type,
			Description:  req.Description,
			ExternalRef:  req.ExternalRef,
			GenerationID: req.GenerationID,
			CreatedAt:    time.Now().UTC(),
		}
		applied, err := s.repo.Insert(ctx, tx, entry)
		if err != nil {
			return err
		}
		if applied {
			if _, err := s.repo.AdjustBalance(ctx, tx, req.UserID, req.Amount); err != nil {
				return err
			}
		}

		balance, err := s.repo.SumByUser(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		result = domain.CreditResult{Balance: balance, Applied: applied}
		return nil
	})
	if err != nil {
		return domain.CreditResult{}, err
	}

	if result.Applied {
		s.metrics.RecordLedgerEntry(ctx, string(req.Type))
		s.log.Info("credits granted",
			zap.Int64("user_id", int64(req.UserID)),
			zap.Int64("amount", req.Amount),
			zap.String("type", string(req.Type)),
			zap.Int64("balance", result.Balance),
		)
	} else {
		s.log.Debug("credit entry deduplicated",
			zap.Int64("user_id", int64(req.UserID)),
			zap.String("type", string(req.Type)),
		)
	}
	return result, nil
}

func (s *ledgerService) History(ctx context.Context, userID snowflake.ID, limit int) ([]domain.CreditTransaction, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByUser(ctx, s.db, userID, limit)
}
