package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// TokenRepo persists and validates hashed refresh tokens.
type TokenRepo struct{ DB *gorm.DB }

func NewTokenRepo(db *gorm.DB) *TokenRepo { return &TokenRepo{DB: db} }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return conn(ctx, r.DB).Create(&model.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: exp,
	}).Error
}

// ValidateRefresh returns the owning user id of a non-revoked, non-expired
// token, or ErrNotFound.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var t model.RefreshToken
	if err := conn(ctx, r.DB).Where("token_hash = ?", tokenHash).First(&t).Error; err != nil {
		return 0, notFound(err)
	}
	if t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, ErrNotFound
	}
	return t.UserID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	return conn(ctx, r.DB).Model(&model.RefreshToken{}).
		Where("token_hash = ? AND revoked_at IS NULL", tokenHash).
		Update("revoked_at", time.Now().UTC()).Error
}

// RevokeAllForUser revokes all of a user's active tokens.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return conn(ctx, r.DB).Model(&model.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", time.Now().UTC()).Error
}

// DeleteForUsers removes every token row of the given users.
func (r *TokenRepo) DeleteForUsers(ctx context.Context, userIDs []uint64) error {
	if len(userIDs) == 0 {
		return nil
	}
	return conn(ctx, r.DB).Where("user_id IN ?", userIDs).Delete(&model.RefreshToken{}).Error
}
