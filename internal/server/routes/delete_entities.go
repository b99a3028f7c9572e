package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DeleteEntityHandler removes a dictionary entity and its aliases.
func DeleteEntityHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	id := c.Param("id")
	if err := app.Dictionary.DeleteEntity(ctx, id); err != nil {
		logger.Error("Failed to delete entity", "entity_id", id, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Entity deleted"})
}
