package model

import "time"

// Truck types.
const (
	TruckDryVan    = "dry_van"
	TruckReefer    = "reefer"
	TruckFlatbed   = "flatbed"
	TruckPowerOnly = "power_only"
	TruckBoxTruck  = "box_truck"
)

// Fleet unit statuses.  A unit's status is what the dispatcher sets; the
// dashboard availability ("ready now" / "busy until") is derived from loads.
const (
	UnitReady       = "ready"
	UnitOffDuty     = "off_duty"
	UnitMaintenance = "maintenance"
	UnitInactive    = "inactive"
)

// FleetUnit is a driver and truck pair owned by exactly one tenant.
type FleetUnit struct {
	ID         uint64 `gorm:"primaryKey" json:"id"`
	TenantID   uint64 `gorm:"not null;index" json:"tenant_id"`
	Name       string `gorm:"size:100;not null" json:"name"`
	Phone      string `gorm:"size:20" json:"phone"`
	UnitNumber string `gorm:"size:20;not null" json:"unit_number"`
	TruckType  string `gorm:"size:20;not null" json:"truck_type"`
	Status     string `gorm:"size:20;not null" json:"status"`

	CDLRef          string `gorm:"size:255" json:"cdl_ref,omitempty"`
	MedicalCardRef  string `gorm:"size:255" json:"medical_card_ref,omitempty"`
	RegistrationRef string `gorm:"size:255" json:"registration_ref,omitempty"`
	InsuranceRef    string `gorm:"size:255" json:"insurance_ref,omitempty"`
	IFTARef         string `gorm:"size:255" json:"ifta_ref,omitempty"`
	W9Ref           string `gorm:"size:255" json:"w9_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTruckType reports whether t is a known truck type.
func IsTruckType(t string) bool {
	switch t {
	case TruckDryVan, TruckReefer, TruckFlatbed, TruckPowerOnly, TruckBoxTruck:
		return true
	}
	return false
}

// IsUnitStatus reports whether s is a known fleet unit status.
func IsUnitStatus(s string) bool {
	switch s {
	case UnitReady, UnitOffDuty, UnitMaintenance, UnitInactive:
		return true
	}
	return false
}
