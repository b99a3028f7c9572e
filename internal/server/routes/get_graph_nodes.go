package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetGraphNodesHandler lists a dataset's nodes, optionally narrowed by
// type, label, document or segment.
func GetGraphNodesHandler(c echo.Context) error {
	type getNodesQuery struct {
		NodeType   string `query:"type"`
		Label      string `query:"label"`
		DocumentID string `query:"document_id"`
		SegmentID  string `query:"segment_id"`
	}

	params := new(getNodesQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	nodes, err := app.Store.ListNodes(ctx, store.NodeFilter{
		DatasetID:  datasetID,
		DocumentID: params.DocumentID,
		SegmentID:  params.SegmentID,
		NodeType:   common.NodeType(params.NodeType),
		Label:      params.Label,
	})
	if err != nil {
		logger.Error("Failed to list nodes", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"nodes": nodes})
}
