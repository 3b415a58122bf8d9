package service

import (
	"context"
	"strings"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
)

// Company manages the profile of the caller's company.
type Company struct{ *base }

// SettingsInput carries the editable company profile.
type SettingsInput struct {
	Name      string `json:"name"`
	DOTNumber string `json:"dot_number"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	ZipCode   string `json:"zip_code"`
}

// Settings returns the caller's company.
func (c *Company) Settings(ctx context.Context, a Actor) (*model.Tenant, error) {
	if err := requireTenant(a); err != nil {
		return nil, err
	}
	return c.tenantOf(ctx, a)
}

// UpdateSettings replaces the company profile.  Plan, billing and approval
// fields are not editable here.
func (c *Company) UpdateSettings(ctx context.Context, a Actor, in SettingsInput) (*model.Tenant, error) {
	if err := requireDispatcher(a); err != nil {
		return nil, err
	}
	v := &ValidationError{}
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		v.Add("name", "required")
	}
	limits := map[string]struct {
		val string
		max int
	}{
		"name":       {in.Name, 200},
		"dot_number": {in.DOTNumber, 50},
		"phone":      {in.Phone, 20},
		"address":    {in.Address, 255},
		"city":       {in.City, 100},
		"state":      {in.State, 50},
		"zip_code":   {in.ZipCode, 20},
	}
	for field, l := range limits {
		if len(strings.TrimSpace(l.val)) > l.max {
			v.Add(field, "too long")
		}
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	var t *model.Tenant
	err := c.tx.Do(ctx, func(ctx context.Context) error {
		var err error
		if t, err = c.tenants.GetForUpdate(ctx, a.TenantID); err != nil {
			return err
		}
		t.Name = in.Name
		t.DOTNumber = strings.TrimSpace(in.DOTNumber)
		t.Phone = strings.TrimSpace(in.Phone)
		t.Address = strings.TrimSpace(in.Address)
		t.City = strings.TrimSpace(in.City)
		t.State = strings.TrimSpace(in.State)
		t.ZipCode = strings.TrimSpace(in.ZipCode)
		return c.tenants.Save(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}
