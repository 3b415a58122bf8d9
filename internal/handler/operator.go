package handler

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"path"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/model"
	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// OperatorHandler serves the platform operator console.
type OperatorHandler struct {
	Lifecycle *service.Lifecycle
}

func NewOperatorHandler(l *service.Lifecycle) *OperatorHandler {
	return &OperatorHandler{Lifecycle: l}
}

// ListTenants supports ?filter=pending|active|inactive.
func (h *OperatorHandler) ListTenants(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	ts, err := h.Lifecycle.ListTenants(ctx, actor(c), c.QueryParam("filter"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"tenants": ts})
}

func (h *OperatorHandler) GetTenant(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := h.Lifecycle.GetTenant(ctx, actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *OperatorHandler) Stats(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	r, err := h.Lifecycle.Rollup(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

type tenantOp func(ctx context.Context, a service.Actor, id uint64) (*model.Tenant, error)

func (h *OperatorHandler) run(c echo.Context, op tenantOp) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	t, err := op(ctx, actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (h *OperatorHandler) Approve(c echo.Context) error { return h.run(c, h.Lifecycle.Approve) }
func (h *OperatorHandler) Pause(c echo.Context) error   { return h.run(c, h.Lifecycle.Pause) }
func (h *OperatorHandler) Reject(c echo.Context) error  { return h.run(c, h.Lifecycle.Reject) }

// Receipt streams the payment receipt a tenant submitted.
func (h *OperatorHandler) Receipt(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	rc, name, err := h.Lifecycle.OpenReceipt(ctx, actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	defer rc.Close()
	ct := mime.TypeByExtension(path.Ext(name))
	if ct == "" {
		ct = echo.MIMEOctetStream
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("inline; filename=%q", name))
	return c.Stream(http.StatusOK, ct, rc)
}

type extendReq struct {
	Days int `json:"days"`
}

// Extend moves the subscription expiry by a signed number of days.
func (h *OperatorHandler) Extend(c echo.Context) error {
	var req extendReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	return h.run(c, func(ctx context.Context, a service.Actor, id uint64) (*model.Tenant, error) {
		return h.Lifecycle.ExtendAccess(ctx, a, id, req.Days)
	})
}

// DeleteTenant removes the tenant and everything it owns.
func (h *OperatorHandler) DeleteTenant(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Lifecycle.Delete(ctx, actor(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
