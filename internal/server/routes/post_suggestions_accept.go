package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AcceptSuggestionHandler promotes a mined suggestion into a learned
// dictionary entity with its alias variants.
func AcceptSuggestionHandler(c echo.Context) error {
	type acceptSuggestionBody struct {
		CanonicalName string   `json:"canonical_name" validate:"required"`
		EntityType    string   `json:"entity_type" validate:"required"`
		Confidence    float64  `json:"confidence"`
		Aliases       []string `json:"aliases"`
	}

	data := new(acceptSuggestionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "canonical_name and entity_type are required"})
	}

	entity := common.DictionaryEntity{
		EntityType:      data.EntityType,
		CanonicalName:   data.CanonicalName,
		ConfidenceScore: data.Confidence,
		Source:          common.EntitySourceLearned,
	}
	for _, alias := range data.Aliases {
		entity.Aliases = append(entity.Aliases, common.EntityAlias{Alias: alias})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if err := app.Dictionary.AddEntity(ctx, &entity); err != nil {
		logger.Error("Failed to accept suggestion", "canonical_name", data.CanonicalName, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, entity)
}
