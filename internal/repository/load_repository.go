package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// LoadFilter narrows a load listing.  Zero values mean "no restriction".
type LoadFilter struct {
	Status      string
	ExcludePaid bool // the active ledger hides paid loads
	FleetUnitID uint64
	Limit       int
	Offset      int
}

// LoadTotals aggregates the money of a tenant's non-cancelled loads.
type LoadTotals struct {
	GrossCents int64
	NetCents   int64
	Open       int64 // booked or active
}

// LoadRepo stores loads.  Every method is scoped by tenant id.
type LoadRepo struct{ DB *gorm.DB }

func NewLoadRepo(db *gorm.DB) *LoadRepo { return &LoadRepo{DB: db} }

func (r *LoadRepo) Create(ctx context.Context, l *model.Load) error {
	return conn(ctx, r.DB).Create(l).Error
}

// Get fetches one load of the tenant; other tenants' loads are ErrNotFound.
func (r *LoadRepo) Get(ctx context.Context, tenantID, id uint64) (*model.Load, error) {
	var l model.Load
	if err := conn(ctx, r.DB).Where("id = ? AND tenant_id = ?", id, tenantID).First(&l).Error; err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// List returns a tenant's loads, latest pickup first.
func (r *LoadRepo) List(ctx context.Context, tenantID uint64, f LoadFilter) ([]model.Load, error) {
	q := conn(ctx, r.DB).Where("tenant_id = ?", tenantID)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.ExcludePaid {
		q = q.Where("status <> ?", model.LoadPaid)
	}
	if f.FleetUnitID != 0 {
		q = q.Where("fleet_unit_id = ?", f.FleetUnitID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}
	var out []model.Load
	err := q.Order("pickup_at DESC, id DESC").Find(&out).Error
	return out, err
}

// Save writes every column of l, which recomputes its net profit.
func (r *LoadRepo) Save(ctx context.Context, tenantID uint64, l *model.Load) error {
	if l.ID == 0 || l.TenantID != tenantID {
		return ErrNotFound
	}
	return conn(ctx, r.DB).Save(l).Error
}

// ClearFleetUnit detaches a unit from all of the tenant's loads.
func (r *LoadRepo) ClearFleetUnit(ctx context.Context, tenantID, unitID uint64) error {
	return conn(ctx, r.DB).Model(&model.Load{}).
		Where("tenant_id = ? AND fleet_unit_id = ?", tenantID, unitID).
		UpdateColumn("fleet_unit_id", nil).Error
}

// LatestOpenByUnit returns, per fleet unit, the non-paid load with the latest
// delivery time.
func (r *LoadRepo) LatestOpenByUnit(ctx context.Context, tenantID uint64) (map[uint64]model.Load, error) {
	var loads []model.Load
	err := conn(ctx, r.DB).
		Where("tenant_id = ? AND fleet_unit_id IS NOT NULL AND status <> ?", tenantID, model.LoadPaid).
		Order("delivery_at DESC, id DESC").
		Find(&loads).Error
	if err != nil {
		return nil, err
	}
	out := make(map[uint64]model.Load)
	for _, l := range loads {
		if _, seen := out[*l.FleetUnitID]; !seen {
			out[*l.FleetUnitID] = l
		}
	}
	return out, nil
}

// Totals sums rate and net profit over the tenant's non-cancelled loads.
func (r *LoadRepo) Totals(ctx context.Context, tenantID uint64) (LoadTotals, error) {
	var t LoadTotals
	err := conn(ctx, r.DB).Model(&model.Load{}).
		Select("COALESCE(SUM(rate_cents), 0) AS gross_cents, COALESCE(SUM(net_profit_cents), 0) AS net_cents").
		Where("tenant_id = ? AND status <> ?", tenantID, model.LoadCancelled).
		Scan(&t).Error
	if err != nil {
		return t, err
	}
	err = conn(ctx, r.DB).Model(&model.Load{}).
		Where("tenant_id = ? AND status IN ?", tenantID, []string{model.LoadBooked, model.LoadActive}).
		Count(&t.Open).Error
	return t, err
}

// DeleteByTenant removes every load of a tenant.
func (r *LoadRepo) DeleteByTenant(ctx context.Context, tenantID uint64) error {
	return conn(ctx, r.DB).Where("tenant_id = ?", tenantID).Delete(&model.Load{}).Error
}
