package service

import (
	"context"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/policy"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
)

// Fleet is the tenant's registry of driver and truck units.
type Fleet struct{ *base }

// FleetInput carries the editable fields of a fleet unit.
type FleetInput struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	UnitNumber string `json:"unit_number"`
	TruckType  string `json:"truck_type"`
	Status     string `json:"status"`
}

func (in *FleetInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.UnitNumber = strings.TrimSpace(in.UnitNumber)
	in.TruckType = strings.ToLower(strings.TrimSpace(in.TruckType))
	in.Status = strings.ToLower(strings.TrimSpace(in.Status))
	if in.TruckType == "" {
		in.TruckType = model.TruckDryVan
	}
	if in.Status == "" {
		in.Status = model.UnitReady
	}

	v := &ValidationError{}
	if in.Name == "" {
		v.Add("name", "required")
	} else if len(in.Name) > 100 {
		v.Add("name", "at most 100 characters")
	}
	if in.UnitNumber == "" {
		v.Add("unit_number", "required")
	} else if len(in.UnitNumber) > 20 {
		v.Add("unit_number", "at most 20 characters")
	}
	if len(in.Phone) > 20 {
		v.Add("phone", "at most 20 characters")
	}
	if !model.IsTruckType(in.TruckType) {
		v.Add("truck_type", "unknown truck type")
	}
	if !model.IsUnitStatus(in.Status) {
		v.Add("status", "unknown status")
	}
	return v.Err()
}

// Create adds a unit after checking the plan limit.  The tenant row is
// locked, the units are counted and the insert happens in the same
// transaction, so concurrent creations cannot overshoot the limit.
func (f *Fleet) Create(ctx context.Context, a Actor, in FleetInput) (*model.FleetUnit, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	u := &model.FleetUnit{
		TenantID:   a.TenantID,
		Name:       in.Name,
		Phone:      in.Phone,
		UnitNumber: in.UnitNumber,
		TruckType:  in.TruckType,
		Status:     in.Status,
	}
	err := f.tx.Do(ctx, func(ctx context.Context) error {
		t, err := f.tenants.GetForUpdate(ctx, a.TenantID)
		if err != nil {
			return err
		}
		n, err := f.fleet.CountByTenant(ctx, a.TenantID)
		if err != nil {
			return err
		}
		if res := policy.CheckFleetQuota(f.plans, t.Plan, n, 1); !res.Allowed {
			metrics.QuotaDenialsTotal.WithLabelValues(t.Plan).Inc()
			return &QuotaError{Plan: t.Plan, Limit: res.Limit, Current: n, Reason: res.Reason}
		}
		return f.fleet.Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	f.publish(ctx, queue.ActivityEvent{Type: queue.EventFleetUnitCreated, TenantID: a.TenantID, ActorID: a.UserID, FleetUnitID: u.ID, Detail: u.UnitNumber})
	return u, nil
}

// List returns the tenant's units.
func (f *Fleet) List(ctx context.Context, a Actor) ([]model.FleetUnit, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	return f.fleet.List(ctx, a.TenantID)
}

// Get returns one unit; units of other tenants are ErrNotFound.
func (f *Fleet) Get(ctx context.Context, a Actor, id uint64) (*model.FleetUnit, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	return f.fleet.Get(ctx, a.TenantID, id)
}

// Update replaces the editable fields of a unit.
func (f *Fleet) Update(ctx context.Context, a Actor, id uint64, in FleetInput) (*model.FleetUnit, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	u, err := f.fleet.Get(ctx, a.TenantID, id)
	if err != nil {
		return nil, err
	}
	u.Name, u.Phone, u.UnitNumber, u.TruckType, u.Status = in.Name, in.Phone, in.UnitNumber, in.TruckType, in.Status
	if err := f.fleet.Save(ctx, a.TenantID, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Delete removes a unit.  Its loads stay in the ledger, unassigned.
func (f *Fleet) Delete(ctx context.Context, a Actor, id uint64) error {
	if err := requireDispatcher(a); err != nil {
		return err
	}
	var refs []string
	err := f.tx.Do(ctx, func(ctx context.Context) error {
		u, err := f.fleet.Get(ctx, a.TenantID, id)
		if err != nil {
			return err
		}
		refs = []string{u.CDLRef, u.MedicalCardRef, u.RegistrationRef, u.InsuranceRef, u.IFTARef, u.W9Ref}
		if err := f.loads.ClearFleetUnit(ctx, a.TenantID, id); err != nil {
			return err
		}
		return f.fleet.Delete(ctx, a.TenantID, id)
	})
	if err != nil {
		return err
	}
	f.discard(ctx, refs...)
	f.publish(ctx, queue.ActivityEvent{Type: queue.EventFleetUnitDeleted, TenantID: a.TenantID, ActorID: a.UserID, FleetUnitID: id})
	return nil
}

// Fleet unit document kinds.
const (
	DocCDL          = "cdl"
	DocMedicalCard  = "medical_card"
	DocRegistration = "registration"
	DocInsurance    = "insurance"
	DocIFTA         = "ifta"
	DocW9           = "w9"
)

func unitDocField(u *model.FleetUnit, kind string) *string {
	switch kind {
	case DocCDL:
		return &u.CDLRef
	case DocMedicalCard:
		return &u.MedicalCardRef
	case DocRegistration:
		return &u.RegistrationRef
	case DocInsurance:
		return &u.InsuranceRef
	case DocIFTA:
		return &u.IFTARef
	case DocW9:
		return &u.W9Ref
	}
	return nil
}

// AttachDocument stores a file and records it on the unit, replacing an
// earlier file of the same kind.
func (f *Fleet) AttachDocument(ctx context.Context, a Actor, id uint64, kind, filename string, r io.Reader) (*model.FleetUnit, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	u, err := f.fleet.Get(ctx, a.TenantID, id)
	if err != nil {
		return nil, err
	}
	field := unitDocField(u, kind)
	if field == nil {
		return nil, invalid("kind", "unknown fleet document kind")
	}
	ref, err := f.store.Put(ctx, tenantFolder(a.TenantID, "fleet", strconv.FormatUint(id, 10)), filename, r)
	if err != nil {
		return nil, storageErr(err)
	}
	old := *field
	*field = ref
	if err := f.fleet.Save(ctx, a.TenantID, u); err != nil {
		f.discard(ctx, ref)
		return nil, err
	}
	f.discard(ctx, old)
	return u, nil
}

// discard removes replaced or orphaned blobs; failures are only logged.
func (b *base) discard(ctx context.Context, refs ...string) {
	if b.store == nil {
		return
	}
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if err := b.store.Delete(ctx, ref); err != nil {
			b.log.Warn("delete stored document failed", zap.String("ref", ref), zap.Error(err))
		}
	}
}
