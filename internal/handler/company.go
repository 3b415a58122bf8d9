package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/middleware"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// TenantHandler serves the company side of the back office: onboarding,
// subscription, dashboard, fleet, loads, documents, settings and members.
type TenantHandler struct {
	Svc *service.Services
}

func NewTenantHandler(svc *service.Services) *TenantHandler {
	if svc == nil {
		panic("nil services passed to NewTenantHandler")
	}
	return &TenantHandler{Svc: svc}
}

// RegisterCompany creates a company for a login that has none.
func (h *TenantHandler) RegisterCompany(c echo.Context) error {
	var req service.CompanyInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	reg, err := h.Svc.Directory.RegisterCompany(ctx, actor(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"tenant": reg.Tenant, "role": reg.Membership.Role})
}

// Status returns the access gate decision for the caller.
func (h *TenantHandler) Status(c echo.Context) error {
	res, ok := middleware.ResolvedFrom(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	now := h.Svc.Now()
	d := middleware.Decision(res, now)
	out := echo.Map{"gate": d, "redirect": d.Redirect()}
	if t := res.Tenant; t != nil {
		out["tenant"] = echo.Map{
			"id":                      t.ID,
			"name":                    t.Name,
			"plan":                    t.Plan,
			"approved":                t.Approved,
			"active":                  t.Active,
			"has_access":              t.HasAccess(now),
			"days_remaining":          t.DaysRemaining(now),
			"subscription_expires_at": t.SubscriptionExpiresAt,
			"payment_submitted_at":    t.PaymentSubmittedAt,
		}
	}
	return c.JSON(http.StatusOK, out)
}

func (h *TenantHandler) GetSettings(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Svc.Company.Settings(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TenantHandler) UpdateSettings(c echo.Context) error {
	var req service.SettingsInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Svc.Company.UpdateSettings(ctx, actor(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *TenantHandler) ListMembers(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ms, err := h.Svc.Directory.ListMembers(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"members": ms})
}

// AddMember creates an owner, driver or dispatcher login in the caller's
// company.
func (h *TenantHandler) AddMember(c echo.Context) error {
	var req service.MemberInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	m, err := h.Svc.Directory.AddMember(ctx, actor(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *TenantHandler) Dashboard(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	v, err := h.Svc.Dashboard.Get(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, v)
}
