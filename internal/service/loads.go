package service

import (
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
	"github.com/iliyamo/dispatch-backoffice/internal/repository"
)

// Loads is the tenant's load ledger.
type Loads struct{ *base }

// LoadInput carries the editable fields of a load.  Money is in cents.
type LoadInput struct {
	FleetUnitID    *uint64   `json:"fleet_unit_id"`
	BrokerName     string    `json:"broker_name"`
	BrokerMC       string    `json:"broker_mc"`
	Reference      string    `json:"reference"`
	Origin         string    `json:"origin"`
	Destination    string    `json:"destination"`
	PickupAt       time.Time `json:"pickup_at"`
	DeliveryAt     time.Time `json:"delivery_at"`
	RateCents      int64     `json:"rate_cents"`
	Miles          int       `json:"miles"`
	ExpensesCents  int64     `json:"expenses_cents"`
	DriverPayCents int64     `json:"driver_pay_cents"`
}

// LoadQuery filters a ledger listing.  Ledger "active" hides paid loads.
type LoadQuery struct {
	Ledger      string
	Status      string
	FleetUnitID uint64
	Limit       int
	Offset      int
}

func (in *LoadInput) normalize() error {
	in.BrokerName = strings.TrimSpace(in.BrokerName)
	in.BrokerMC = strings.TrimSpace(in.BrokerMC)
	in.Reference = strings.TrimSpace(in.Reference)
	in.Origin = strings.TrimSpace(in.Origin)
	in.Destination = strings.TrimSpace(in.Destination)
	if in.BrokerName == "" {
		in.BrokerName = "TBD"
	}
	if in.BrokerMC == "" {
		in.BrokerMC = "000000"
	}
	if in.FleetUnitID != nil && *in.FleetUnitID == 0 {
		in.FleetUnitID = nil
	}

	v := &ValidationError{}
	required := []struct {
		field, val string
		max        int
	}{
		{"reference", in.Reference, 50},
		{"origin", in.Origin, 100},
		{"destination", in.Destination, 100},
	}
	for _, r := range required {
		if r.val == "" {
			v.Add(r.field, "required")
		} else if len(r.val) > r.max {
			v.Add(r.field, "at most "+strconv.Itoa(r.max)+" characters")
		}
	}
	if len(in.BrokerName) > 200 {
		v.Add("broker_name", "at most 200 characters")
	}
	if len(in.BrokerMC) > 20 {
		v.Add("broker_mc", "at most 20 characters")
	}
	if in.PickupAt.IsZero() {
		v.Add("pickup_at", "required")
	}
	if in.DeliveryAt.IsZero() {
		v.Add("delivery_at", "required")
	} else if !in.PickupAt.IsZero() && in.DeliveryAt.Before(in.PickupAt) {
		v.Add("delivery_at", "must not be before pickup")
	}
	if in.RateCents < 0 {
		v.Add("rate_cents", "must not be negative")
	}
	if in.ExpensesCents < 0 {
		v.Add("expenses_cents", "must not be negative")
	}
	if in.DriverPayCents < 0 {
		v.Add("driver_pay_cents", "must not be negative")
	}
	if in.Miles < 0 {
		v.Add("miles", "must not be negative")
	}
	return v.Err()
}

func (in *LoadInput) apply(l *model.Load) {
	l.FleetUnitID = in.FleetUnitID
	l.BrokerName = in.BrokerName
	l.BrokerMC = in.BrokerMC
	l.Reference = in.Reference
	l.Origin = in.Origin
	l.Destination = in.Destination
	l.PickupAt = in.PickupAt.UTC()
	l.DeliveryAt = in.DeliveryAt.UTC()
	l.RateCents = in.RateCents
	l.Miles = in.Miles
	l.ExpensesCents = in.ExpensesCents
	l.DriverPayCents = in.DriverPayCents
}

// checkUnit verifies an assigned unit belongs to the tenant.
func (s *Loads) checkUnit(ctx context.Context, tenantID uint64, unitID *uint64) error {
	if unitID == nil {
		return nil
	}
	if _, err := s.fleet.Get(ctx, tenantID, *unitID); err != nil {
		return err
	}
	return nil
}

// Create books a new load.
func (s *Loads) Create(ctx context.Context, a Actor, in LoadInput) (*model.Load, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	if err := s.checkUnit(ctx, a.TenantID, in.FleetUnitID); err != nil {
		return nil, err
	}
	l := &model.Load{TenantID: a.TenantID, Status: model.LoadBooked}
	in.apply(l)
	if err := s.loads.Create(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

// List returns the tenant's loads.
func (s *Loads) List(ctx context.Context, a Actor, q LoadQuery) ([]model.Load, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	f := repository.LoadFilter{FleetUnitID: q.FleetUnitID, Limit: q.Limit, Offset: q.Offset}
	switch strings.ToLower(strings.TrimSpace(q.Ledger)) {
	case "", "all":
	case "active":
		f.ExcludePaid = true
	default:
		return nil, invalid("ledger", "must be active or all")
	}
	if q.Status != "" {
		st, ok := model.NormalizeLoadStatus(q.Status)
		if !ok {
			return nil, invalid("status", "unknown status")
		}
		f.Status = st
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	return s.loads.List(ctx, a.TenantID, f)
}

// Get returns one load; loads of other tenants are ErrNotFound.
func (s *Loads) Get(ctx context.Context, a Actor, id uint64) (*model.Load, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	return s.loads.Get(ctx, a.TenantID, id)
}

// Update replaces the editable fields of a load.  The status only changes
// through UpdateStatus.  Net profit is recomputed on save.
func (s *Loads) Update(ctx context.Context, a Actor, id uint64, in LoadInput) (*model.Load, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}
	l, err := s.loads.Get(ctx, a.TenantID, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkUnit(ctx, a.TenantID, in.FleetUnitID); err != nil {
		return nil, err
	}
	in.apply(l)
	if err := s.loads.Save(ctx, a.TenantID, l); err != nil {
		return nil, err
	}
	return l, nil
}

// UpdateStatus moves a load along booked → active → delivered → paid, or to
// cancelled from booked or active.  "in_transit" is accepted for active.
// Setting the current status again is a no-op.
func (s *Loads) UpdateStatus(ctx context.Context, a Actor, id uint64, status string) (*model.Load, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	to, ok := model.NormalizeLoadStatus(status)
	if !ok {
		return nil, invalid("status", "unknown status")
	}
	l, err := s.loads.Get(ctx, a.TenantID, id)
	if err != nil {
		return nil, err
	}
	from := l.Status
	if from == to {
		return l, nil
	}
	if !model.CanTransition(from, to) {
		return nil, ErrInvalidTransition
	}
	l.Status = to
	if err := s.loads.Save(ctx, a.TenantID, l); err != nil {
		return nil, err
	}
	metrics.LoadTransitionsTotal.WithLabelValues(from, to).Inc()
	s.publish(ctx, queue.ActivityEvent{
		Type:       queue.EventLoadStatusChanged,
		TenantID:   a.TenantID,
		ActorID:    a.UserID,
		LoadID:     l.ID,
		FromStatus: from,
		ToStatus:   to,
	})
	return l, nil
}

// Load document kinds.
const (
	DocRateConfirmation = "rate_confirmation"
	DocBillOfLading     = "bill_of_lading"
	DocProofOfDelivery  = "proof_of_delivery"
)

func loadDocField(l *model.Load, kind string) *string {
	switch kind {
	case DocRateConfirmation:
		return &l.RateConfirmationRef
	case DocBillOfLading:
		return &l.BillOfLadingRef
	case DocProofOfDelivery:
		return &l.ProofOfDeliveryRef
	}
	return nil
}

// AttachDocument stores a file and records it on the load.
func (s *Loads) AttachDocument(ctx context.Context, a Actor, id uint64, kind, filename string, r io.Reader) (*model.Load, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	l, err := s.loads.Get(ctx, a.TenantID, id)
	if err != nil {
		return nil, err
	}
	field := loadDocField(l, kind)
	if field == nil {
		return nil, invalid("kind", "unknown load document kind")
	}
	ref, err := s.store.Put(ctx, tenantFolder(a.TenantID, "loads", strconv.FormatUint(id, 10)), filename, r)
	if err != nil {
		return nil, storageErr(err)
	}
	old := *field
	*field = ref
	if err := s.loads.Save(ctx, a.TenantID, l); err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	s.discard(ctx, old)
	return l, nil
}
