package model

import "time"

// Plan tiers.
const (
	PlanStarter    = "starter"
	PlanPro        = "pro"
	PlanEnterprise = "enterprise"
)

// Tenant is one customer company and the unit of data isolation.  A tenant
// is created inactive and unapproved at registration.  OwnerID references the
// registering user; deleting the tenant removes that user as well.
type Tenant struct {
	ID        uint64 `gorm:"primaryKey" json:"id"`
	OwnerID   uint64 `gorm:"not null;uniqueIndex" json:"owner_id"`
	Name      string `gorm:"size:200;not null" json:"name"`
	DOTNumber string `gorm:"size:50" json:"dot_number"`
	Phone     string `gorm:"size:20" json:"phone"`
	Address   string `gorm:"size:255" json:"address"`
	City      string `gorm:"size:100" json:"city"`
	State     string `gorm:"size:50" json:"state"`
	ZipCode   string `gorm:"size:20" json:"zip_code"`
	LogoRef   string `gorm:"size:255" json:"logo_ref,omitempty"`

	Plan                  string     `gorm:"size:20;not null" json:"plan"`
	RequestedPlan         string     `gorm:"size:20" json:"requested_plan,omitempty"`
	Approved              bool       `gorm:"not null" json:"approved"`
	Active                bool       `gorm:"not null" json:"active"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at"`
	PaymentReceiptRef     string     `gorm:"size:255" json:"payment_receipt_ref,omitempty"`
	PaymentSubmittedAt    *time.Time `json:"payment_submitted_at"`

	AuthorityDocRef string     `gorm:"size:255" json:"authority_doc_ref,omitempty"`
	AuthorityExpiry *time.Time `json:"authority_expiry"`
	InsuranceDocRef string     `gorm:"size:255" json:"insurance_doc_ref,omitempty"`
	InsuranceExpiry *time.Time `json:"insurance_expiry"`
	W9DocRef        string     `gorm:"size:255" json:"w9_doc_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasAccess is true iff the tenant is active and its subscription is either
// open-ended or not yet expired.  It is derived on every call and never
// stored.
func (t *Tenant) HasAccess(now time.Time) bool {
	if t == nil || !t.Active {
		return false
	}
	return t.SubscriptionExpiresAt == nil || t.SubscriptionExpiresAt.After(now)
}

// DaysRemaining returns the whole days left on the subscription, 0 when no
// expiry is set or it already passed.
func (t *Tenant) DaysRemaining(now time.Time) int {
	if t == nil || t.SubscriptionExpiresAt == nil {
		return 0
	}
	d := t.SubscriptionExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

// PaymentPending reports a submitted receipt waiting for an operator while
// the tenant has no access: a new sign-up, or a renewal after the
// subscription lapsed.  Early renewals keep their access.
func (t *Tenant) PaymentPending(now time.Time) bool {
	return t != nil && t.PaymentSubmittedAt != nil && !t.HasAccess(now)
}
