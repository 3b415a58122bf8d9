package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

type MembershipRepo struct{ DB *gorm.DB }

func NewMembershipRepo(db *gorm.DB) *MembershipRepo { return &MembershipRepo{DB: db} }

// Create binds a user to a tenant.  A user that already has a membership
// yields ErrConflict.
func (r *MembershipRepo) Create(ctx context.Context, m *model.Membership) error {
	if err := conn(ctx, r.DB).Create(m).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// Resolve returns the membership of userID, or nil with a nil error when the
// user has none.
func (r *MembershipRepo) Resolve(ctx context.Context, userID uint64) (*model.Membership, error) {
	var m model.Membership
	err := conn(ctx, r.DB).Where("user_id = ?", userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListByTenant returns the memberships of a tenant ordered by creation.
func (r *MembershipRepo) ListByTenant(ctx context.Context, tenantID uint64) ([]model.Membership, error) {
	var out []model.Membership
	err := conn(ctx, r.DB).Where("tenant_id = ?", tenantID).Order("id").Find(&out).Error
	return out, err
}

// UserIDsByTenant returns the ids of every user bound to a tenant.
func (r *MembershipRepo) UserIDsByTenant(ctx context.Context, tenantID uint64) ([]uint64, error) {
	var ids []uint64
	err := conn(ctx, r.DB).Model(&model.Membership{}).
		Where("tenant_id = ?", tenantID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// DeleteByTenant removes every membership of a tenant.
func (r *MembershipRepo) DeleteByTenant(ctx context.Context, tenantID uint64) error {
	return conn(ctx, r.DB).Where("tenant_id = ?", tenantID).Delete(&model.Membership{}).Error
}
