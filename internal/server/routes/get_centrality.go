package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/graphquery"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetCentralityHandler ranks a dataset's nodes by degree, betweenness
// or closeness centrality.
func GetCentralityHandler(c echo.Context) error {
	type centralityQuery struct {
		Kind  string `query:"kind"`
		Limit int    `query:"limit"`
	}

	params := new(centralityQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	kind := graphquery.CentralityKind(params.Kind)
	if params.Kind == "" {
		kind = graphquery.CentralityDegree
	}

	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	scores, err := app.Query.Centrality(ctx, datasetID, kind, params.Limit)
	if err != nil {
		logger.Error("Failed to compute centrality", "dataset_id", datasetID, "kind", params.Kind, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"scores": scores})
}
