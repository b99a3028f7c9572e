package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/labstack/echo/v4"
)

// GetEntitiesHandler lists dictionary entities with aliases attached,
// optionally filtered by type, source, name or minimum confidence.
func GetEntitiesHandler(c echo.Context) error {
	type getEntitiesQuery struct {
		EntityType    string  `query:"type"`
		Source        string  `query:"source"`
		Name          string  `query:"name"`
		MinConfidence float64 `query:"min_confidence"`
	}

	params := new(getEntitiesQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entities, err := app.Dictionary.FindEntities(ctx, store.EntityFilter{
		EntityType:    params.EntityType,
		Source:        common.EntitySource(params.Source),
		CanonicalName: params.Name,
		MinConfidence: params.MinConfidence,
	})
	if err != nil {
		logger.Error("Failed to list entities", "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{"entities": entities})
}

// GetEntityHandler returns one dictionary entity by internal id.
func GetEntityHandler(c echo.Context) error {
	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entity, err := app.Dictionary.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, entity)
}
