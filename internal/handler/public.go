package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/dispatch-backoffice/internal/config"
)

// PublicHandler serves unauthenticated, tenant-independent data.
type PublicHandler struct {
	Plans config.Plans
}

func NewPublicHandler(plans config.Plans) *PublicHandler {
	return &PublicHandler{Plans: plans}
}

// ListPlans returns the plan catalog ordered by price.
func (h *PublicHandler) ListPlans(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"plans": h.Plans.Sorted()})
}
