package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

type TenantRepo struct{ DB *gorm.DB }

func NewTenantRepo(db *gorm.DB) *TenantRepo { return &TenantRepo{DB: db} }

// Create inserts a tenant.  A second company for the same owner is
// rejected with ErrConflict.
func (r *TenantRepo) Create(ctx context.Context, t *model.Tenant) error {
	if err := conn(ctx, r.DB).Create(t).Error; err != nil {
		if IsDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetByID fetches a tenant by id.
func (r *TenantRepo) GetByID(ctx context.Context, id uint64) (*model.Tenant, error) {
	var t model.Tenant
	if err := conn(ctx, r.DB).First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// GetForUpdate fetches a tenant and locks its row until the surrounding
// transaction ends.  Writers that must see a stable per-tenant count (the
// fleet quota check) take this lock first.  SQLite has no row locks; its
// single writer already serializes the transaction.
func (r *TenantRepo) GetForUpdate(ctx context.Context, id uint64) (*model.Tenant, error) {
	q := conn(ctx, r.DB)
	if q.Dialector.Name() != "sqlite" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var t model.Tenant
	if err := q.First(&t, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// Save writes every column of t.
func (r *TenantRepo) Save(ctx context.Context, t *model.Tenant) error {
	return conn(ctx, r.DB).Save(t).Error
}

// List returns all tenants, newest first.
func (r *TenantRepo) List(ctx context.Context) ([]model.Tenant, error) {
	var out []model.Tenant
	err := conn(ctx, r.DB).Order("created_at DESC, id DESC").Find(&out).Error
	return out, err
}

// Delete removes the tenant row only; dependent rows are the caller's job.
func (r *TenantRepo) Delete(ctx context.Context, id uint64) error {
	res := conn(ctx, r.DB).Delete(&model.Tenant{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
