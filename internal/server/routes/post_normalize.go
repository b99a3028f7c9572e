package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/normalize"

	"github.com/labstack/echo/v4"
)

// NormalizeByKeyHandler merges, for each key node, all sufficiently
// similar nodes of the same type into a canonical representative.
func NormalizeByKeyHandler(c echo.Context) error {
	type normalizeBody struct {
		KeyNodeIDs []string `json:"key_node_ids" validate:"required,min=1"`
		Threshold  float64  `json:"threshold"`
		NodeType   string   `json:"node_type"`
	}

	data := new(normalizeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "key_node_ids is required"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	result, err := app.Normalizer.NormalizeNodesByKey(ctx, data.KeyNodeIDs, normalize.Options{
		Threshold: data.Threshold,
		NodeType:  common.NodeType(data.NodeType),
	})
	if err != nil {
		logger.Error("Normalization run failed", "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
