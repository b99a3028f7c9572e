package routes

import (
	"io"
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ImportDictionaryHandler bulk-imports entities from a JSON or YAML
// export file posted as the request body.
func ImportDictionaryHandler(c echo.Context) error {
	format := dictionary.ExportFormat(c.QueryParam("format"))
	if format == "" {
		format = dictionary.FormatJSON
	}

	mode := dictionary.ImportMode(c.QueryParam("mode"))
	if mode == "" {
		mode = dictionary.ImportSkipDuplicates
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Failed to read request body"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	result, err := app.Dictionary.Import(ctx, body, format, mode)
	if err != nil {
		logger.Error("Dictionary import failed", "format", format, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
