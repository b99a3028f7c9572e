package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateEntityHandler adds a dictionary entity together with its
// aliases.
func CreateEntityHandler(c echo.Context) error {
	type createEntityBody struct {
		EntityID      string   `json:"entity_id"`
		EntityType    string   `json:"entity_type" validate:"required"`
		CanonicalName string   `json:"canonical_name" validate:"required"`
		Confidence    float64  `json:"confidence_score"`
		Source        string   `json:"source"`
		Aliases       []string `json:"aliases"`
	}

	data := new(createEntityBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "entity_type and canonical_name are required"})
	}

	source := common.EntitySource(data.Source)
	if data.Source == "" {
		source = common.EntitySourceManual
	}

	entity := common.DictionaryEntity{
		EntityID:        data.EntityID,
		EntityType:      data.EntityType,
		CanonicalName:   data.CanonicalName,
		ConfidenceScore: data.Confidence,
		Source:          source,
	}
	for _, alias := range data.Aliases {
		entity.Aliases = append(entity.Aliases, common.EntityAlias{Alias: alias})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if err := app.Dictionary.AddEntity(ctx, &entity); err != nil {
		logger.Error("Failed to create entity", "canonical_name", data.CanonicalName, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, entity)
}
