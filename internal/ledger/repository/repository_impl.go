package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/restyleworks/restyle/internal/ledger/domain"
	pkgdb "github.com/restyleworks/restyle/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, tx *domain.CreditTransaction) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (
			id, user_id, amount, type, description, external_ref, generation_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID,
		tx.UserID,
		tx.Amount,
		string(tx.Type),
		tx.Description,
		tx.ExternalRef,
		tx.GenerationID,
		tx.CreatedAt,
	)
	if result.Error != nil {
		if pkgdb.IsDuplicateKeyErr(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AdjustBalance(ctx context.Context, db *gorm.DB, userID snowflake.ID, delta int64) (bool, error) {
	query := `UPDATE users SET credit_balance = credit_balance + ?, updated_at = ? WHERE id = ?`
	args := []any{delta, time.Now().UTC(), userID}
	if delta < 0 {
		query += ` AND credit_balance >= ?`
		args = append(args, -delta)
	}
	result := db.WithContext(ctx).Exec(query, args...)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) SumByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListByUser(ctx context.Context, db *gorm.DB, userID snowflake.ID, limit int) ([]domain.CreditTransaction, error) {
	var txs []domain.CreditTransaction
	err := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, err
	}
	return txs, nil
}

func (r *repo) UserExists(ctx context.Context, db *gorm.DB, userID snowflake.ID) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM users WHERE id = ?`,
		userID,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
