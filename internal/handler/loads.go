package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/service"
)

// ListLoads supports ?ledger=active|all, ?status=, ?fleet_unit_id=,
// ?limit= and ?offset=.
func (h *TenantHandler) ListLoads(c echo.Context) error {
	q := service.LoadQuery{Ledger: c.QueryParam("ledger"), Status: c.QueryParam("status")}
	unit, err := queryInt(c, "fleet_unit_id")
	if err != nil {
		return writeError(c, err)
	}
	if unit < 0 {
		return writeError(c, &service.ValidationError{Fields: map[string]string{"fleet_unit_id": "must not be negative"}})
	}
	q.FleetUnitID = uint64(unit)
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return writeError(c, err)
	}
	if q.Offset, err = queryInt(c, "offset"); err != nil {
		return writeError(c, err)
	}

	ctx, cancel := reqCtx(c)
	defer cancel()
	loads, err := h.Svc.Loads.List(ctx, actor(c), q)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"loads": loads})
}

func (h *TenantHandler) CreateLoad(c echo.Context) error {
	var req service.LoadInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Svc.Loads.Create(ctx, actor(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}

func (h *TenantHandler) GetLoad(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Svc.Loads.Get(ctx, actor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *TenantHandler) UpdateLoad(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req service.LoadInput
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Svc.Loads.Update(ctx, actor(c), id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *TenantHandler) UpdateLoadStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return writeError(c, err)
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	l, err := h.Svc.Loads.UpdateStatus(ctx, actor(c), id, req.Status)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, l)
}

func (h *TenantHandler) UploadLoadDocument(c echo.Context) error {
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
	l, err := h.Svc.Loads.AttachDocument(ctx, actor(c), id, c.Param("kind"), name, r)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, l)
}
