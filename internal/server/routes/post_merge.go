package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// MergeNodesHandler merges the source nodes into the target node. Edges
// are rewritten, properties folded into the target and the merge is
// recorded in the normalization log.
func MergeNodesHandler(c echo.Context) error {
	type mergeBody struct {
		SourceIDs  []string `json:"source_ids" validate:"required,min=1"`
		TargetID   string   `json:"target_id" validate:"required"`
		Confidence float64  `json:"confidence"`
	}

	data := new(mergeBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "source_ids and target_id are required"})
	}

	confidence := data.Confidence
	if confidence <= 0 {
		confidence = 1.0
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	err := app.Normalizer.MergeNodes(ctx, data.SourceIDs, data.TargetID, common.NormalizationManual, confidence)
	if err != nil {
		logger.Error("Manual merge failed", "target_id", data.TargetID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"message": "Nodes merged"})
}
