package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/generation/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, gen *domain.Generation) error {
	return db.WithContext(ctx).Create(gen).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Generation, error) {
	var gen domain.Generation
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&gen).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &gen, nil
}

func (r *repo) FindByProviderJobID(ctx context.Context, db *gorm.DB, jobID string) (*domain.Generation, error) {
	var gen domain.Generation
	err := db.WithContext(ctx).
		Where("provider_job_id = ?", jobID).
		First(&gen).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &gen, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.Generation, error) {
	var gens []domain.Generation
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&gens).Error
	if err != nil {
		return nil, err
	}
	return gens, nil
}

func (r *repo) SetProcessing(ctx context.Context, db *gorm.DB, id snowflake.ID, providerJobID string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE generations
		 SET status = ?, provider_job_id = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(domain.StatusProcessing),
		providerJobID,
		time.Now().UTC(),
		id,
		string(domain.StatusPending),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) Finalize(ctx context.Context, db *gorm.DB, id snowflake.ID, status domain.Status, update domain.TerminalUpdate) (bool, error) {
	now := time.Now().UTC()
	result := db.WithContext(ctx).Exec(
		`UPDATE generations
		 SET status = ?, output_image_key = ?, error_message = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND status NOT IN (?, ?)`,
		string(status),
		update.OutputImageKey,
		update.ErrorMessage,
		now,
		now,
		id,
		string(domain.StatusCompleted),
		string(domain.StatusFailed),
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkUnlocked(ctx context.Context, db *gorm.DB, id snowflake.ID, paymentRef *string) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE generations
		 SET hd_unlocked = ?, payment_ref = ?, updated_at = ?
		 WHERE id = ? AND hd_unlocked = ?`,
		true, paymentRef, time.Now().UTC(), id, false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
