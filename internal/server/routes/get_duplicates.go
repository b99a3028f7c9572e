package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetDuplicatesHandler previews duplicate node groups above the
// similarity threshold without merging anything.
func GetDuplicatesHandler(c echo.Context) error {
	type duplicatesQuery struct {
		NodeType  string  `query:"type"`
		Threshold float64 `query:"threshold"`
	}

	params := new(duplicatesQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	groups, err := app.Normalizer.FindDuplicates(ctx, datasetID, common.NodeType(params.NodeType), params.Threshold)
	if err != nil {
		logger.Error("Duplicate scan failed", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"groups": groups})
}
