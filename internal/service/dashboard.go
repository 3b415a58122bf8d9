package service

import (
	"context"
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
)

// Dashboard builds the tenant's home screen.
type Dashboard struct{ *base }

// UnitAvailability is the derived display state of one fleet unit.
type UnitAvailability struct {
	Unit        model.FleetUnit `json:"unit"`
	Available   bool            `json:"available"`
	BusyUntil   *time.Time      `json:"busy_until,omitempty"`
	Destination string          `json:"destination,omitempty"`
	LoadID      uint64          `json:"load_id,omitempty"`
	LoadStatus  string          `json:"load_status,omitempty"`
}

// DashboardView is everything the dashboard renders.
type DashboardView struct {
	Company               string             `json:"company"`
	Plan                  string             `json:"plan"`
	PlanLimit             int                `json:"plan_limit"`
	FleetUnits            int                `json:"fleet_units"`
	DaysRemaining         int                `json:"days_remaining"`
	SubscriptionExpiresAt *time.Time         `json:"subscription_expires_at"`
	GrossCents            int64              `json:"gross_cents"`
	NetCents              int64              `json:"net_cents"`
	OpenLoads             int64              `json:"open_loads"`
	ActiveLoads           []model.Load       `json:"active_loads"`
	Fleet                 []UnitAvailability `json:"fleet"`
}

// Availability projects each unit's state from its latest non-paid load
// (by delivery time).  A unit is available when it has no such load or
// that load is delivered or cancelled; otherwise it is busy until the
// load's delivery.  Nothing is persisted.
func Availability(units []model.FleetUnit, latest map[uint64]model.Load) []UnitAvailability {
	out := make([]UnitAvailability, 0, len(units))
	for _, u := range units {
		a := UnitAvailability{Unit: u, Available: true}
		if l, ok := latest[u.ID]; ok && !model.ReadyForDispatch(l.Status) {
			until := l.DeliveryAt
			a.Available = false
			a.BusyUntil = &until
			a.Destination = l.Destination
			a.LoadID = l.ID
			a.LoadStatus = l.Status
		}
		out = append(out, a)
	}
	return out
}

// Get assembles the dashboard of the caller's company.
func (d *Dashboard) Get(ctx context.Context, a Actor) (*DashboardView, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	t, err := d.tenantOf(ctx, a)
	if err != nil {
		return nil, err
	}
	units, err := d.fleet.List(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	latest, err := d.loads.LatestOpenByUnit(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	totals, err := d.loads.Totals(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	open, err := d.loads.List(ctx, a.TenantID, repository.LoadFilter{ExcludePaid: true})
	if err != nil {
		return nil, err
	}

	v := &DashboardView{
		Company:               t.Name,
		Plan:                  t.Plan,
		FleetUnits:            len(units),
		DaysRemaining:         t.DaysRemaining(d.now()),
		SubscriptionExpiresAt: t.SubscriptionExpiresAt,
		GrossCents:            totals.GrossCents,
		NetCents:              totals.NetCents,
		OpenLoads:             totals.Open,
		ActiveLoads:           make([]model.Load, 0, len(open)),
		Fleet:                 Availability(units, latest),
	}
	if p, ok := d.plans.Lookup(t.Plan); ok {
		v.PlanLimit = p.MaxFleetUnits
	}
	for _, l := range open {
		if l.Status == model.LoadBooked || l.Status == model.LoadActive {
			v.ActiveLoads = append(v.ActiveLoads, l)
		}
	}
	return v, nil
}
