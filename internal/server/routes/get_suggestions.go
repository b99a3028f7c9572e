package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// GetSuggestionsHandler mines the dataset's graph for frequently
// extracted labels that are not in the dictionary yet.
func GetSuggestionsHandler(c echo.Context) error {
	datasetID := c.Param("dataset_id")
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	suggestions, err := app.Learner.SuggestNewEntities(ctx, datasetID)
	if err != nil {
		logger.Error("Failed to suggest entities", "dataset_id", datasetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"suggestions": suggestions})
}
