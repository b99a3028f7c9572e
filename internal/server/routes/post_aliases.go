package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// AddAliasHandler attaches an alias to an existing dictionary entity.
func AddAliasHandler(c echo.Context) error {
	type addAliasBody struct {
		Alias    string `json:"alias" validate:"required"`
		Language string `json:"language"`
		Script   string `json:"script"`
		Type     string `json:"type"`
	}

	data := new(addAliasBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "alias is required"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	alias := common.EntityAlias{
		EntityID: c.Param("id"),
		Alias:    data.Alias,
		Language: data.Language,
		Script:   data.Script,
		Type:     data.Type,
	}

	if err := app.Dictionary.AddAlias(ctx, &alias); err != nil {
		logger.Error("Failed to add alias", "entity_id", alias.EntityID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusCreated, alias)
}
