package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetCommunitiesHandler detects connected components of at least
// min_size nodes and reports per-community type histograms.
func GetCommunitiesHandler(c echo.Context) error {
	type communitiesQuery struct {
		MinSize int `query:"min_size"`
	}

	params := new(communitiesQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	report, err := app.Query.DetectCommunities(ctx, datasetID, params.MinSize)
	if err != nil {
		logger.Error("Failed to detect communities", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, report)
}
