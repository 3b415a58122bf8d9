package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

type UserRepo struct{ DB *gorm.DB }

func NewUserRepo(db *gorm.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts u with a normalized username and email.  A taken username
// or email yields ErrDuplicateIdentity.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	var n int64
	err := conn(ctx, r.DB).Model(&model.User{}).
		Where("LOWER(username) = ? OR email = ?", strings.ToLower(u.Username), u.Email).
		Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrDuplicateIdentity
	}
	if err := conn(ctx, r.DB).Create(u).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var u model.User
	if err := conn(ctx, r.DB).First(&u, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// GetByLogin fetches a user by username (case-insensitive) or email.
func (r *UserRepo) GetByLogin(ctx context.Context, login string) (*model.User, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	var u model.User
	err := conn(ctx, r.DB).
		Where("LOWER(username) = ? OR email = ?", login, login).
		Order("id").
		First(&u).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// ListByIDs returns the users with the given ids ordered by username.
func (r *UserRepo) ListByIDs(ctx context.Context, ids []uint64) ([]model.User, error) {
	var out []model.User
	if len(ids) == 0 {
		return out, nil
	}
	err := conn(ctx, r.DB).Where("id IN ?", ids).Order("username").Find(&out).Error
	return out, err
}

// DeleteByIDs removes the users with the given ids.
func (r *UserRepo) DeleteByIDs(ctx context.Context, ids []uint64) error {
	if len(ids) == 0 {
		return nil
	}
	return conn(ctx, r.DB).Where("id IN ?", ids).Delete(&model.User{}).Error
}
