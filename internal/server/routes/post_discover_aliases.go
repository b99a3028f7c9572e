package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DiscoverAliasesHandler scans a dataset's graph for label variants of
// known entities and records them as aliases.
func DiscoverAliasesHandler(c echo.Context) error {
	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	added, err := app.Learner.DiscoverEntityAliases(ctx, datasetID)
	if err != nil {
		logger.Error("Alias discovery failed", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"message":       "Alias discovery finished",
		"aliases_added": added,
	})
}
