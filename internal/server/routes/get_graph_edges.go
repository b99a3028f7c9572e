package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetGraphEdgesHandler lists a dataset's edges, optionally narrowed by
// type or endpoint.
func GetGraphEdgesHandler(c echo.Context) error {
	type getEdgesQuery struct {
		EdgeType string `query:"type"`
		SourceID string `query:"source_id"`
		TargetID string `query:"target_id"`
	}

	params := new(getEdgesQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	edges, err := app.Store.ListEdges(ctx, store.EdgeFilter{
		DatasetID:    datasetID,
		SourceNodeID: params.SourceID,
		TargetNodeID: params.TargetID,
		EdgeType:     common.EdgeType(params.EdgeType),
	})
	if err != nil {
		logger.Error("Failed to list edges", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"edges": edges})
}
