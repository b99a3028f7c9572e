package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetNormalizationLogHandler returns the dataset's merge audit trail,
// newest first.
func GetNormalizationLogHandler(c echo.Context) error {
	type logQuery struct {
		Limit int `query:"limit"`
	}

	params := new(logQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entries, err := app.Store.ListNormalizationLog(ctx, datasetID, params.Limit)
	if err != nil {
		logger.Error("Failed to list normalization log", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
