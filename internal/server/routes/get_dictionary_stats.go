package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDictionaryStatsHandler reports entity and alias totals, type and
// source histograms and the average confidence.
func GetDictionaryStatsHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	stats, err := app.Dictionary.Statistics(ctx)
	if err != nil {
		logger.Error("Failed to collect dictionary stats", "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, stats)
}
