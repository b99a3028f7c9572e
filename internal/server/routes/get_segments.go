package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// GetSegmentHandler returns one segment with its extraction status.
func GetSegmentHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	segment, err := app.Store.GetSegment(ctx, c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, segment)
}
