// Package policy holds the admission rules applied to every tenant request:
// the access gate and the per-plan fleet quota.  Both are pure functions of
// the state they are handed.
package policy

import (
	"time"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// Decision is the outcome of the access gate.
type Decision string

const (
	Allow             Decision = "ALLOW"
	NeedsRegistration Decision = "NEEDS_REGISTRATION"
	NeedsSubscription Decision = "NEEDS_SUBSCRIPTION"
	PaymentPending    Decision = "PAYMENT_PENDING"
	NeedsApproval     Decision = "NEEDS_APPROVAL"
	OperatorConsole   Decision = "OPERATOR_CONSOLE"
)

// Identity is the caller as seen by the gate.
type Identity struct {
	UserID     uint64
	IsOperator bool
}

// Decide evaluates, in order: operator, tenant existence, pending payment,
// subscription access, approval.  tenant is nil when the identity has no
// membership.  Decide never mutates the tenant.
func Decide(id Identity, tenant *model.Tenant, now time.Time) Decision {
	switch {
	case id.IsOperator:
		return OperatorConsole
	case tenant == nil:
		return NeedsRegistration
	case tenant.PaymentPending(now):
		return PaymentPending
	case !tenant.HasAccess(now):
		return NeedsSubscription
	case !tenant.Approved:
		return NeedsApproval
	}
	return Allow
}

// Redirect is the surface a blocked caller should be sent to.
func (d Decision) Redirect() string {
	switch d {
	case OperatorConsole:
		return "/v1/operator/tenants"
	case NeedsRegistration:
		return "/v1/company/register"
	case NeedsSubscription:
		return "/v1/subscription"
	case PaymentPending, NeedsApproval:
		return "/v1/company/status"
	}
	return "/v1/dashboard"
}
