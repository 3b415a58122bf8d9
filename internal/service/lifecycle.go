package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/dispatch-backoffice/internal/metrics"
	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/policy"
	"github.com/iliyamo/dispatch-backoffice/internal/queue"
	"github.com/iliyamo/dispatch-backoffice/internal/storage"
)

// maxExtendDays bounds a single access extension in either direction.
const maxExtendDays = 3650

// Lifecycle is the operator console: it approves, pauses, rejects, extends
// and deletes tenants and aggregates platform statistics.
type Lifecycle struct{ *base }

// TenantSummary is one row of the operator's tenant list.
type TenantSummary struct {
	model.Tenant
	HasAccess      bool            `json:"has_access"`
	DaysRemaining  int             `json:"days_remaining"`
	PaymentPending bool            `json:"payment_pending"`
	Gate           policy.Decision `json:"gate"`
	MonthlyCents   int64           `json:"monthly_price_cents"`
}

// Rollup aggregates tenant state for the operator dashboard.
type Rollup struct {
	TotalTenants     int            `json:"total_tenants"`
	ActiveTenants    int            `json:"active_tenants"`
	PendingPayments  int            `json:"pending_payments"`
	AwaitingApproval int            `json:"awaiting_approval"`
	MRRCents         int64          `json:"mrr_cents"`
	ByPlan           map[string]int `json:"by_plan"`
}

// ListTenants returns every tenant with its derived access state.  filter
// is one of "", "pending", "active" or "inactive".
func (l *Lifecycle) ListTenants(ctx context.Context, a Actor, filter string) ([]TenantSummary, error) {
	if err := requireOperator(a); err != nil {
		return nil, err
	}
	tenants, err := l.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	out := make([]TenantSummary, 0, len(tenants))
	for i := range tenants {
		t := &tenants[i]
		s := l.summarize(t, now)
		switch strings.ToLower(filter) {
		case "pending":
			if !s.PaymentPending {
				continue
			}
		case "active":
			if !s.HasAccess {
				continue
			}
		case "inactive":
			if s.HasAccess {
				continue
			}
		}
		out = append(out, s)
	}
	return out, nil
}

// GetTenant returns one tenant with its derived access state.
func (l *Lifecycle) GetTenant(ctx context.Context, a Actor, id uint64) (*TenantSummary, error) {
	if err := requireOperator(a); err != nil {
		return nil, err
	}
	t, err := l.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s := l.summarize(t, l.now())
	return &s, nil
}

func (l *Lifecycle) summarize(t *model.Tenant, now time.Time) TenantSummary {
	return TenantSummary{
		Tenant:         *t,
		HasAccess:      t.HasAccess(now),
		DaysRemaining:  t.DaysRemaining(now),
		PaymentPending: t.PaymentPending(now),
		Gate:           policy.Decide(policy.Identity{UserID: t.OwnerID}, t, now),
		MonthlyCents:   l.plans.PriceCents(t.Plan),
	}
}

// Approve activates and approves a tenant and starts a fresh subscription
// period of approvalDays from now.  An existing expiry is replaced, not
// extended.  The payment submission is consumed so a later pause sends the
// tenant back to the payment step, and a pending plan upgrade takes effect.
func (l *Lifecycle) Approve(ctx context.Context, a Actor, id uint64) (*model.Tenant, error) {
	return l.mutate(ctx, a, id, "approve", queue.EventTenantApproved, func(t *model.Tenant, now time.Time) error {
		exp := now.Add(time.Duration(l.approvalDays) * 24 * time.Hour)
		t.Approved = true
		t.Active = true
		t.SubscriptionExpiresAt = &exp
		t.PaymentSubmittedAt = nil
		if t.RequestedPlan != "" {
			t.Plan = t.RequestedPlan
			t.RequestedPlan = ""
		}
		return nil
	})
}

// Pause deactivates a tenant.  Its expiry and approval are kept.
func (l *Lifecycle) Pause(ctx context.Context, a Actor, id uint64) (*model.Tenant, error) {
	return l.mutate(ctx, a, id, "pause", queue.EventTenantPaused, func(t *model.Tenant, _ time.Time) error {
		t.Active = false
		return nil
	})
}

// Reject withdraws the operator approval while leaving billing state alone.
// A paying tenant then sees NEEDS_APPROVAL.
func (l *Lifecycle) Reject(ctx context.Context, a Actor, id uint64) (*model.Tenant, error) {
	return l.mutate(ctx, a, id, "reject", queue.EventTenantRejected, func(t *model.Tenant, _ time.Time) error {
		t.Approved = false
		return nil
	})
}

// ExtendAccess moves the expiry by days: from the current expiry when one is
// set, from now otherwise.  Negative values shorten access.  The active flag
// is not touched.
func (l *Lifecycle) ExtendAccess(ctx context.Context, a Actor, id uint64, days int) (*model.Tenant, error) {
	if days == 0 || days > maxExtendDays || days < -maxExtendDays {
		return nil, invalid("days", fmt.Sprintf("must be non-zero and within ±%d", maxExtendDays))
	}
	return l.mutate(ctx, a, id, "extend", queue.EventAccessExtended, func(t *model.Tenant, now time.Time) error {
		from := now
		if t.SubscriptionExpiresAt != nil {
			from = *t.SubscriptionExpiresAt
		}
		exp := from.Add(time.Duration(days) * 24 * time.Hour)
		t.SubscriptionExpiresAt = &exp
		return nil
	})
}

func (l *Lifecycle) mutate(ctx context.Context, a Actor, id uint64, op, event string, apply func(*model.Tenant, time.Time) error) (*model.Tenant, error) {
	if err := requireOperator(a); err != nil {
		return nil, err
	}
	var t *model.Tenant
	err := l.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		if t, err = l.tenants.GetForUpdate(ctx, id); err != nil {
			return err
		}
		if err := apply(t, l.now()); err != nil {
			return err
		}
		return l.tenants.Save(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	metrics.TenantOperationsTotal.WithLabelValues(op).Inc()
	ev := queue.ActivityEvent{Type: event, TenantID: t.ID, TenantName: t.Name, ActorID: a.UserID}
	if t.SubscriptionExpiresAt != nil {
		ev.Detail = "expires " + t.SubscriptionExpiresAt.UTC().Format(time.RFC3339)
	}
	l.publish(ctx, ev)
	return t, nil
}

// OpenReceipt returns the payment receipt a tenant uploaded, with its
// stored file name.
func (l *Lifecycle) OpenReceipt(ctx context.Context, a Actor, id uint64) (io.ReadCloser, string, error) {
	if err := requireOperator(a); err != nil {
		return nil, "", err
	}
	t, err := l.tenants.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if t.PaymentReceiptRef == "" {
		return nil, "", ErrNotFound
	}
	rc, err := l.store.Open(ctx, t.PaymentReceiptRef)
	if errors.Is(err, storage.ErrBadRef) {
		return nil, "", ErrNotFound
	}
	if err != nil {
		return nil, "", err
	}
	return rc, path.Base(t.PaymentReceiptRef), nil
}

// Delete removes a tenant and everything it owns in one transaction: loads,
// fleet units, the refresh tokens of its members, memberships, the member
// logins and the owner login.  Stored documents are removed after the
// commit.
func (l *Lifecycle) Delete(ctx context.Context, a Actor, id uint64) error {
	if err := requireOperator(a); err != nil {
		return err
	}
	var name string
	err := l.tx.Do(ctx, func(ctx context.Context) error {
		t, err := l.tenants.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		name = t.Name
		userIDs, err := l.members.UserIDsByTenant(ctx, id)
		if err != nil {
			return err
		}
		userIDs = appendUnique(userIDs, t.OwnerID)

		if err := l.loads.DeleteByTenant(ctx, id); err != nil {
			return err
		}
		if err := l.fleet.DeleteByTenant(ctx, id); err != nil {
			return err
		}
		if err := l.tokens.DeleteForUsers(ctx, userIDs); err != nil {
			return err
		}
		if err := l.members.DeleteByTenant(ctx, id); err != nil {
			return err
		}
		if err := l.tenants.Delete(ctx, id); err != nil {
			return err
		}
		return l.users.DeleteByIDs(ctx, userIDs)
	})
	if err != nil {
		return err
	}
	if l.store != nil {
		if err := l.store.DeleteFolder(ctx, tenantFolder(id)); err != nil {
			l.log.Warn("delete tenant documents failed", zap.Uint64("tenant_id", id), zap.Error(err))
		}
	}
	metrics.TenantOperationsTotal.WithLabelValues("delete").Inc()
	l.publish(ctx, queue.ActivityEvent{Type: queue.EventTenantDeleted, TenantID: id, TenantName: name, ActorID: a.UserID})
	return nil
}

// Rollup aggregates tenant state.  Tenants on a plan missing from the
// catalog count as zero revenue.
func (l *Lifecycle) Rollup(ctx context.Context, a Actor) (*Rollup, error) {
	if err := requireOperator(a); err != nil {
		return nil, err
	}
	tenants, err := l.tenants.List(ctx)
	if err != nil {
		return nil, err
	}
	now := l.now()
	r := &Rollup{TotalTenants: len(tenants), ByPlan: map[string]int{}}
	for i := range tenants {
		t := &tenants[i]
		r.ByPlan[t.Plan]++
		if t.PaymentPending(now) {
			r.PendingPayments++
		}
		if t.HasAccess(now) {
			r.ActiveTenants++
			r.MRRCents += l.plans.PriceCents(t.Plan)
			if !t.Approved {
				r.AwaitingApproval++
			}
		}
	}
	return r, nil
}

func appendUnique(ids []uint64, id uint64) []uint64 {
	for _, v := range ids {
		if v == id {
			return ids
		}
	}
	return append(ids, id)
}
