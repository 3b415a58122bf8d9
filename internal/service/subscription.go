package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/policy"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
)

// Subscription handles the payment and plan pages of a company.
type Subscription struct{ *base }

// SubscriptionView is the state shown on the subscription page.
type SubscriptionView struct {
	Plan               string          `json:"plan"`
	RequestedPlan      string          `json:"requested_plan,omitempty"`
	Gate               policy.Decision `json:"gate"`
	Active             bool            `json:"active"`
	Approved           bool            `json:"approved"`
	HasAccess          bool            `json:"has_access"`
	DaysRemaining      int             `json:"days_remaining"`
	ExpiresAt          *time.Time      `json:"expires_at"`
	PaymentPending     bool            `json:"payment_pending"`
	PaymentSubmittedAt *time.Time      `json:"payment_submitted_at"`
	FleetUnits         int             `json:"fleet_units"`
	Plans              []config.Plan   `json:"plans"`
}

// Status describes the caller's subscription.
func (s *Subscription) Status(ctx context.Context, a Actor) (*SubscriptionView, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	t, err := s.tenantOf(ctx, a)
	if err != nil {
		return nil, err
	}
	n, err := s.fleet.CountByTenant(ctx, a.TenantID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &SubscriptionView{
		Plan:               t.Plan,
		RequestedPlan:      t.RequestedPlan,
		Gate:               policy.Decide(policy.Identity{UserID: a.UserID}, t, now),
		Active:             t.Active,
		Approved:           t.Approved,
		HasAccess:          t.HasAccess(now),
		DaysRemaining:      t.DaysRemaining(now),
		ExpiresAt:          t.SubscriptionExpiresAt,
		PaymentPending:     t.PaymentPending(now),
		PaymentSubmittedAt: t.PaymentSubmittedAt,
		FleetUnits:         n,
		Plans:              s.plans.Sorted(),
	}, nil
}

// SubmitReceipt stores a payment receipt and marks the payment as
// submitted.  An inactive tenant then waits for operator activation.
func (s *Subscription) SubmitReceipt(ctx context.Context, a Actor, filename string, r io.Reader) (*model.Tenant, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	ref, err := s.store.Put(ctx, tenantFolder(a.TenantID, "receipts"), filename, r)
	if err != nil {
		return nil, storageErr(err)
	}
	var t *model.Tenant
	err = s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.tenants.GetForUpdate(ctx, a.TenantID); err != nil {
			return err
		}
		now := s.now()
		t.PaymentReceiptRef = ref
		t.PaymentSubmittedAt = &now
		return s.tenants.Save(ctx, t)
	})
	if err != nil {
		s.discard(ctx, ref)
		return nil, err
	}
	s.publish(ctx, queue.ActivityEvent{Type: queue.EventPaymentSubmitted, TenantID: t.ID, TenantName: t.Name, ActorID: a.UserID, Detail: t.Plan})
	return t, nil
}

// ChangePlan switches the company to another tier.  A downgrade applies at
// once unless the current fleet exceeds the new limit.  An upgrade only
// records RequestedPlan; the operator applies it with the next approval,
// after the receipt for the new price has been checked.  Asking for the
// current tier withdraws a pending request.
func (s *Subscription) ChangePlan(ctx context.Context, a Actor, tier string) (*model.Tenant, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	plan, ok := s.plans.Lookup(tier)
	if !ok {
		return nil, invalid("plan", "unknown plan")
	}
	var (
		t         *model.Tenant
		from      string
		requested bool
	)
	err := s.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		if t, err = s.tenants.GetForUpdate(ctx, a.TenantID); err != nil {
			return err
		}
		from = t.Plan
		if strings.EqualFold(from, plan.Tier) {
			if t.RequestedPlan == "" {
				return nil
			}
			t.RequestedPlan = ""
			return s.tenants.Save(ctx, t)
		}
		if cur, ok := s.plans.Lookup(from); !ok || isUpgrade(cur, plan) {
			requested = true
			t.RequestedPlan = plan.Tier
			return s.tenants.Save(ctx, t)
		}
		n, err := s.fleet.CountByTenant(ctx, a.TenantID)
		if err != nil {
			return err
		}
		if !plan.Unbounded() && n > plan.MaxFleetUnits {
			return &QuotaError{
				Plan:    plan.Tier,
				Limit:   plan.MaxFleetUnits,
				Current: n,
				Reason:  fmt.Sprintf("%s plan allows %d fleet units; %d registered", plan.Tier, plan.MaxFleetUnits, n),
			}
		}
		t.Plan = plan.Tier
		t.RequestedPlan = ""
		return s.tenants.Save(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	switch {
	case requested:
		s.publish(ctx, queue.ActivityEvent{Type: queue.EventPlanRequested, TenantID: t.ID, TenantName: t.Name, ActorID: a.UserID, FromStatus: from, ToStatus: plan.Tier})
	case !strings.EqualFold(from, t.Plan):
		s.publish(ctx, queue.ActivityEvent{Type: queue.EventPlanChanged, TenantID: t.ID, TenantName: t.Name, ActorID: a.UserID, FromStatus: from, ToStatus: t.Plan})
	}
	return t, nil
}

// isUpgrade reports whether moving from cur to next costs more or lifts the
// fleet limit.
func isUpgrade(cur, next config.Plan) bool {
	if next.MonthlyPriceCents > cur.MonthlyPriceCents {
		return true
	}
	switch {
	case cur.Unbounded():
		return false
	case next.Unbounded():
		return true
	}
	return next.MaxFleetUnits > cur.MaxFleetUnits
}
