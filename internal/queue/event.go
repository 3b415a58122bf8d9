// Package queue defines the activity events exchanged over the message
// broker and the consumer that records them.
package queue

import "time"

// Activity event types.
const (
	EventTenantRegistered  = "tenant.registered"
	EventPaymentSubmitted  = "tenant.payment_submitted"
	EventPlanChanged       = "tenant.plan_changed"
	EventPlanRequested     = "tenant.plan_requested"
	EventTenantApproved    = "tenant.approved"
	EventTenantPaused      = "tenant.paused"
	EventTenantRejected    = "tenant.rejected"
	EventAccessExtended    = "tenant.access_extended"
	EventTenantDeleted     = "tenant.deleted"
	EventMemberAdded       = "tenant.member_added"
	EventLoadStatusChanged = "load.status_changed"
	EventFleetUnitCreated  = "fleet.unit_created"
	EventFleetUnitDeleted  = "fleet.unit_deleted"
)

// DefaultActivityQueue is the durable queue activity events go to.
const DefaultActivityQueue = "dispatch.activity"

// ActivityEvent is published after a tenant-visible state change commits.
// It carries enough context for audit logging and notifications without a
// database lookup.
type ActivityEvent struct {
	Type        string    `json:"type"`
	TenantID    uint64    `json:"tenant_id"`
	TenantName  string    `json:"tenant_name,omitempty"`
	ActorID     uint64    `json:"actor_id"`
	FleetUnitID uint64    `json:"fleet_unit_id,omitempty"`
	LoadID      uint64    `json:"load_id,omitempty"`
	FromStatus  string    `json:"from_status,omitempty"`
	ToStatus    string    `json:"to_status,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}
