package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

func (h *TenantHandler) ListFleet(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	units, err := h.Svc.Fleet.List(ctx, actor(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"fleet": units})
}

// CreateFleetUnit adds a unit; the plan limit answers 402 with an upgrade
// link when reached.
func (h *TenantHandler) CreateFleetUnit(c echo.Context) error {
	var req service.FleetInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Svc.Fleet.Create(ctx, actor(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *TenantHandler) GetFleetUnit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Svc.Fleet.Get(ctx, actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *TenantHandler) UpdateFleetUnit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req service.FleetInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Svc.Fleet.Update(ctx, actor(c), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *TenantHandler) DeleteFleetUnit(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Svc.Fleet.Delete(ctx, actor(c), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *TenantHandler) UploadFleetDocument(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	name, r, err := formFile(c)
	if err != nil {
		return writeError(c, err)
	}
	defer r.Close()
	ctx, cancel := reqCtx(c)
	defer cancel()
	u, err := h.Svc.Fleet.AttachDocument(ctx, actor(c), id, c.Param("kind"), name, r)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, u)
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &service.ValidationError{Fields: map[string]string{name: "must be an integer"}}
	}
	return n, nil
}
