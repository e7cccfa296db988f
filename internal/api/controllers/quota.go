package controllers

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/datallboy/modfetch/internal/app"
)

type QuotaController struct {
	App *app.Context
}

// Get reports the governor's view of the remote quota
func (ctrl *QuotaController) Get(c *echo.Context) error {
	return c.JSON(http.StatusOK, ctrl.App.Governor.State())
}
