package policy

import (
	"fmt"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
)

// QuotaResult is the outcome of a quota check.  Limit is -1 for unbounded
// plans and 0 when the plan is unknown.
type QuotaResult struct {
	Allowed bool
	Plan    string
	Limit   int
	Current int
	Reason  string
}

// CheckFleetQuota decides whether a tenant on plan that already owns current
// fleet units may add delta more.  Unknown plans are denied.
func CheckFleetQuota(plans config.Plans, plan string, current, delta int) QuotaResult {
	res := QuotaResult{Plan: plan, Current: current}
	p, ok := plans.Lookup(plan)
	if !ok {
		res.Reason = fmt.Sprintf("unknown plan %q", plan)
		return res
	}
	res.Plan = p.Tier
	res.Limit = p.MaxFleetUnits
	if delta < 0 {
		delta = 0
	}
	if p.Unbounded() || current+delta <= p.MaxFleetUnits {
		res.Allowed = true
		return res
	}
	res.Reason = fmt.Sprintf("%s plan allows %d fleet units; %d in use", p.DisplayName, p.MaxFleetUnits, current)
	return res
}
