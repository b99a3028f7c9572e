package routes

import (
	"net/http"
	"strings"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetNeighborsHandler returns the nodes reachable from a node within
// the given hop depth, optionally filtered to a comma separated list of
// node types.
func GetNeighborsHandler(c echo.Context) error {
	type neighborsQuery struct {
		Depth int    `query:"depth"`
		Types string `query:"types"`
	}

	params := new(neighborsQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	var typeFilter []common.NodeType
	if params.Types != "" {
		for _, t := range strings.Split(params.Types, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				typeFilter = append(typeFilter, common.NodeType(t))
			}
		}
	}

	datasetID := c.Param("dataset_id")
	nodeID := c.Param("node_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	neighbors, err := app.Query.Neighbors(ctx, datasetID, nodeID, params.Depth, typeFilter)
	if err != nil {
		logger.Error("Failed to query neighbors", "dataset_id", datasetID, "node_id", nodeID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"neighbors": neighbors})
}
