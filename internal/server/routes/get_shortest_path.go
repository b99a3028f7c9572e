package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetShortestPathHandler returns the weighted shortest path between two
// nodes, or 404 when no path exists within max_depth hops.
func GetShortestPathHandler(c echo.Context) error {
	type shortestPathQuery struct {
		Source   string `query:"source" validate:"required"`
		Target   string `query:"target" validate:"required"`
		MaxDepth int    `query:"max_depth"`
	}

	params := new(shortestPathQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source and target are required"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	path, err := app.Query.ShortestPath(ctx, datasetID, params.Source, params.Target, params.MaxDepth)
	if err != nil {
		logger.Error("Failed to compute shortest path", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}
	if path == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "No path found"})
	}

	return c.JSON(http.StatusOK, path)
}
