package routes

import (
	"encoding/json"
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/internal/storage"
	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// ImportSegmentsHandler loads a document payload from the object store
// and ingests its segments. The object is a JSON array in the same
// shape as the inline segments endpoint.
func ImportSegmentsHandler(c echo.Context) error {
	type importSegmentsBody struct {
		Key string `json:"key"`
	}

	type importSegmentsResponse struct {
		Message  string `json:"message"`
		Imported int    `json:"imported,omitempty"`
	}

	datasetID := c.Param("dataset_id")
	documentID := c.Param("document_id")

	data := new(importSegmentsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, importSegmentsResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App
	if app.S3 == nil {
		return c.JSON(http.StatusServiceUnavailable, importSegmentsResponse{
			Message: "Object storage is not configured",
		})
	}

	key := data.Key
	if key == "" {
		key = storage.DocumentKey(datasetID, documentID)
	}

	payload, err := storage.GetObject(ctx, app.S3, key)
	if err != nil {
		logger.Error("Failed to load document payload", "key", key, "err", err)
		return c.JSON(http.StatusNotFound, importSegmentsResponse{
			Message: "Document payload not found",
		})
	}

	var segments []common.Segment
	if err := json.Unmarshal(payload, &segments); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, importSegmentsResponse{
			Message: "Document payload is not a segment array",
		})
	}

	imported := 0
	for i := range segments {
		segment := &segments[i]
		segment.DatasetID = datasetID
		segment.DocumentID = documentID
		segment.Content = util.SanitizePostgresText(segment.Content)
		segment.Status = common.SegmentPending
		if err := app.Store.CreateSegment(ctx, segment); err != nil {
			if common.IsConflict(err) {
				continue
			}
			logger.Error("Failed to import segment", "document_id", documentID, "err", err)
			return jsonError(c, err)
		}
		imported++
	}

	return c.JSON(http.StatusCreated, importSegmentsResponse{
		Message:  "Segments imported",
		Imported: imported,
	})
}
