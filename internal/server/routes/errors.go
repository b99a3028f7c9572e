package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/pkg/common"

	"github.com/labstack/echo/v4"
)

// jsonError maps domain errors onto HTTP status codes. Unknown errors
// become opaque 500s; the cause is logged at the call site.
func jsonError(c echo.Context, err error) error {
	switch {
	case common.IsNotFound(err):
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	case common.IsConflict(err):
		return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
	case common.IsConfiguration(err):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case common.IsParseError(err):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}
