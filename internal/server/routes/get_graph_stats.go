package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetGraphStatsHandler reports a dataset's node and edge histograms
// together with its density and average path length.
func GetGraphStatsHandler(c echo.Context) error {
	type graphStatsResponse struct {
		Counts            store.GraphCounts `json:"counts"`
		Density           float64           `json:"density"`
		AveragePathLength float64           `json:"average_path_length"`
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	counts, err := app.Store.Counts(ctx, datasetID)
	if err != nil {
		logger.Error("Failed to count graph", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	density, err := app.Query.Density(ctx, datasetID)
	if err != nil {
		logger.Error("Failed to compute density", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	avgPath, err := app.Query.AveragePathLength(ctx, datasetID)
	if err != nil {
		logger.Error("Failed to compute average path length", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, graphStatsResponse{
		Counts:            counts,
		Density:           density,
		AveragePathLength: avgPath,
	})
}
