package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Load statuses.
const (
	LoadBooked    = "booked"
	LoadActive    = "active"
	LoadDelivered = "delivered"
	LoadPaid      = "paid"
	LoadCancelled = "cancelled"
)

// Load is a shipment booked by a tenant.  Money is kept in cents.
// NetProfitCents is derived from rate, expenses and driver pay on every save.
type Load struct {
	ID          uint64  `gorm:"primaryKey" json:"id"`
	TenantID    uint64  `gorm:"not null;index" json:"tenant_id"`
	FleetUnitID *uint64 `gorm:"index" json:"fleet_unit_id"`

	BrokerName  string    `gorm:"size:200;not null" json:"broker_name"`
	BrokerMC    string    `gorm:"size:20;not null" json:"broker_mc"`
	Reference   string    `gorm:"size:50;not null" json:"reference"`
	Origin      string    `gorm:"size:100;not null" json:"origin"`
	Destination string    `gorm:"size:100;not null" json:"destination"`
	PickupAt    time.Time `gorm:"not null" json:"pickup_at"`
	DeliveryAt  time.Time `gorm:"not null;index" json:"delivery_at"`

	RateCents      int64  `gorm:"not null" json:"rate_cents"`
	Miles          int    `gorm:"not null" json:"miles"`
	ExpensesCents  int64  `gorm:"not null" json:"expenses_cents"`
	DriverPayCents int64  `gorm:"not null" json:"driver_pay_cents"`
	NetProfitCents int64  `gorm:"not null" json:"net_profit_cents"`
	Status         string `gorm:"size:20;not null;index" json:"status"`

	RateConfirmationRef string `gorm:"size:255" json:"rate_confirmation_ref,omitempty"`
	BillOfLadingRef     string `gorm:"size:255" json:"bill_of_lading_ref,omitempty"`
	ProofOfDeliveryRef  string `gorm:"size:255" json:"proof_of_delivery_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NetProfit is rate minus expenses and driver pay.
func (l *Load) NetProfit() int64 {
	return l.RateCents - l.ExpensesCents - l.DriverPayCents
}

// BeforeSave keeps the stored profit in step with its inputs.
func (l *Load) BeforeSave(tx *gorm.DB) error {
	l.NetProfitCents = l.NetProfit()
	return nil
}

// loadTransitions lists the allowed forward moves.  paid and cancelled are
// terminal.
var loadTransitions = map[string][]string{
	LoadBooked:    {LoadActive, LoadCancelled},
	LoadActive:    {LoadDelivered, LoadCancelled},
	LoadDelivered: {LoadPaid},
}

// NormalizeLoadStatus lower-cases s and maps "in_transit" / "in-transit" to
// active.  ok is false for unknown statuses.
func NormalizeLoadStatus(s string) (status string, ok bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "in_transit", "in-transit", "intransit":
		return LoadActive, true
	case LoadBooked, LoadActive, LoadDelivered, LoadPaid, LoadCancelled:
		return s, true
	}
	return "", false
}

// CanTransition reports whether a load may move from one status to another.
func CanTransition(from, to string) bool {
	for _, next := range loadTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ReadyForDispatch reports whether a unit whose latest load has this status
// is free for a new load.
func ReadyForDispatch(status string) bool {
	return status == LoadDelivered || status == LoadCancelled || status == LoadPaid
}
