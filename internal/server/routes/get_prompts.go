package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/pkg/extraction"

	"github.com/labstack/echo/v4"
)

// GetPromptsHandler lists the available extraction prompt templates.
func GetPromptsHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"prompts": extraction.PromptIDs()})
}
