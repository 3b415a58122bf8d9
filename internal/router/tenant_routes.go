package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/handler"
	"github.com/iliyamo/dispatch-backoffice/internal/middleware"
	"github.com/iliyamo/dispatch-backoffice/internal/utils"
)

// RegisterTenant registers the company side of the API.  Every route needs
// a valid token and a resolved identity.  Onboarding routes admit a company
// in any state; the working surface sits behind the access gate.
func RegisterTenant(e *echo.Echo, h *handler.TenantHandler, jwtSecret string) {
	v1 := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.Resolve(h.Svc.Directory))

	// identity without a company, or any caller asking where to go
	v1.POST("/company/register", h.RegisterCompany)
	v1.GET("/company/status", h.Status)

	onboarding := v1.Group("", middleware.RequireTenant())
	onboarding.GET("/subscription", h.Subscription)
	onboarding.POST("/subscription/receipt", h.SubmitReceipt)
	onboarding.POST("/subscription/plan", h.ChangePlan)
	onboarding.GET("/documents", h.Documents)
	onboarding.GET("/documents/download", h.DownloadDocument)
	onboarding.POST("/documents/company/:kind", h.UploadCompanyDocument)

	gated := v1.Group("", middleware.AccessGate(h.Svc.Now))
	gated.GET("/dashboard", h.Dashboard)

	gated.GET("/fleet", h.ListFleet)
	gated.POST("/fleet", h.CreateFleetUnit)
	gated.GET("/fleet/:id", h.GetFleetUnit)
	gated.PUT("/fleet/:id", h.UpdateFleetUnit)
	gated.DELETE("/fleet/:id", h.DeleteFleetUnit)
	gated.POST("/fleet/:id/documents/:kind", h.UploadFleetDocument)

	gated.GET("/loads", h.ListLoads)
	gated.POST("/loads", h.CreateLoad)
	gated.GET("/loads/:id", h.GetLoad)
	gated.PUT("/loads/:id", h.UpdateLoad)
	gated.PATCH("/loads/:id/status", h.UpdateLoadStatus)
	gated.POST("/loads/:id/documents/:kind", h.UploadLoadDocument)

	gated.GET("/company/settings", h.GetSettings)
	gated.PUT("/company/settings", h.UpdateSettings)
	gated.GET("/company/members", h.ListMembers)
	gated.POST("/company/members", h.AddMember)
}

// RegisterOperator registers the operator console under /v1/operator.
func RegisterOperator(e *echo.Echo, h *handler.OperatorHandler, jwtSecret string, dir middleware.Resolver) {
	g := e.Group("/v1/operator",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.ClaimOperator),
		middleware.Resolve(dir),
		middleware.RequireOperator(),
	)
	g.GET("/tenants", h.ListTenants)
	g.GET("/tenants/:id", h.GetTenant)
	g.GET("/tenants/:id/receipt", h.Receipt)
	g.GET("/stats", h.Stats)
	g.POST("/tenants/:id/approve", h.Approve)
	g.POST("/tenants/:id/pause", h.Pause)
	g.POST("/tenants/:id/reject", h.Reject)
	g.POST("/tenants/:id/extend", h.Extend)
	g.DELETE("/tenants/:id", h.DeleteTenant)
}
