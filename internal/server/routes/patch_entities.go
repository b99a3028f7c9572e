package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// EditEntityHandler updates the mutable fields of a dictionary entity.
// Omitted fields keep their stored value.
func EditEntityHandler(c echo.Context) error {
	type editEntityBody struct {
		EntityID      *string  `json:"entity_id"`
		EntityType    *string  `json:"entity_type"`
		CanonicalName *string  `json:"canonical_name"`
		Confidence    *float64 `json:"confidence_score"`
		Source        *string  `json:"source"`
	}

	data := new(editEntityBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	entity, err := app.Dictionary.GetEntity(ctx, c.Param("id"))
	if err != nil {
		return jsonError(c, err)
	}

	if data.EntityID != nil {
		entity.EntityID = *data.EntityID
	}
	if data.EntityType != nil {
		entity.EntityType = *data.EntityType
	}
	if data.CanonicalName != nil {
		entity.CanonicalName = *data.CanonicalName
	}
	if data.Confidence != nil {
		entity.ConfidenceScore = *data.Confidence
	}
	if data.Source != nil {
		entity.Source = common.EntitySource(*data.Source)
	}

	if err := app.Dictionary.UpdateEntity(ctx, entity); err != nil {
		logger.Error("Failed to update entity", "entity_id", entity.ID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, entity)
}
