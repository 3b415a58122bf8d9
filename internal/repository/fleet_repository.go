package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// FleetRepo stores fleet units.  Every method is scoped by tenant id.
type FleetRepo struct{ DB *gorm.DB }

func NewFleetRepo(db *gorm.DB) *FleetRepo { return &FleetRepo{DB: db} }

func (r *FleetRepo) Create(ctx context.Context, u *model.FleetUnit) error {
	return conn(ctx, r.DB).Create(u).Error
}

// CountByTenant returns the number of units a tenant owns.
func (r *FleetRepo) CountByTenant(ctx context.Context, tenantID uint64) (int, error) {
	var n int64
	err := conn(ctx, r.DB).Model(&model.FleetUnit{}).Where("tenant_id = ?", tenantID).Count(&n).Error
	return int(n), err
}

// List returns a tenant's units ordered by unit number.
func (r *FleetRepo) List(ctx context.Context, tenantID uint64) ([]model.FleetUnit, error) {
	var out []model.FleetUnit
	err := conn(ctx, r.DB).Where("tenant_id = ?", tenantID).Order("unit_number, id").Find(&out).Error
	return out, err
}

// Get fetches one unit of the tenant.  A unit owned by another tenant is
// reported as ErrNotFound.
func (r *FleetRepo) Get(ctx context.Context, tenantID, id uint64) (*model.FleetUnit, error) {
	var u model.FleetUnit
	if err := conn(ctx, r.DB).Where("id = ? AND tenant_id = ?", id, tenantID).First(&u).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Save writes every column of u.  u must belong to tenantID.
func (r *FleetRepo) Save(ctx context.Context, tenantID uint64, u *model.FleetUnit) error {
	if u.ID == 0 || u.TenantID != tenantID {
		return ErrNotFound
	}
	return conn(ctx, r.DB).Save(u).Error
}

// Delete removes one unit of the tenant.
func (r *FleetRepo) Delete(ctx context.Context, tenantID, id uint64) error {
	res := conn(ctx, r.DB).Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&model.FleetUnit{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByTenant removes every unit of a tenant.
func (r *FleetRepo) DeleteByTenant(ctx context.Context, tenantID uint64) error {
	return conn(ctx, r.DB).Where("tenant_id = ?", tenantID).Delete(&model.FleetUnit{}).Error
}
