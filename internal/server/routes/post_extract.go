package routes

import (
	"encoding/json"
	"net/http"

	"github.com/signalhouse/magpie/internal/queue"
	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ExtractDocumentHandler starts entity extraction for a document.
// Async mode queues the job for a worker; sync mode runs it in the
// request and returns the batch summary.
func ExtractDocumentHandler(c echo.Context) error {
	type extractBody struct {
		Provider       string  `json:"provider"`
		Model          string  `json:"model"`
		PromptID       string  `json:"prompt_id"`
		ContentType    string  `json:"content_type"`
		HybridEnabled  bool    `json:"hybrid_enabled"`
		MatchThreshold float64 `json:"match_threshold"`
		SegmentID      string  `json:"segment_id"`
		Async          bool    `json:"async"`
	}

	type extractResponse struct {
		Message string                  `json:"message"`
		Batch   *extraction.BatchResult `json:"batch,omitempty"`
	}

	datasetID := c.Param("dataset_id")
	documentID := c.Param("document_id")

	data := new(extractBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, extractResponse{
			Message: "Invalid request body",
		})
	}

	override := &extraction.Config{
		Provider:       data.Provider,
		Model:          data.Model,
		PromptID:       data.PromptID,
		ContentType:    data.ContentType,
		HybridEnabled:  data.HybridEnabled,
		MatchThreshold: data.MatchThreshold,
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	if data.Async {
		msg := queue.ExtractJobMsg{
			Message:    "Extraction requested",
			DatasetID:  datasetID,
			DocumentID: documentID,
			SegmentID:  data.SegmentID,
			Config:     override,
		}
		msgBytes, err := json.Marshal(msg)
		if err != nil {
			logger.Error("Failed to marshal extract job", "document_id", documentID, "err", err)
			return jsonError(c, err)
		}
		if err := queue.PublishFIFO(app.Queue, queue.ExtractQueue, msgBytes); err != nil {
			logger.Error("Failed to queue extract job", "document_id", documentID, "err", err)
			return jsonError(c, err)
		}
		return c.JSON(http.StatusAccepted, extractResponse{
			Message: "Extraction queued",
		})
	}

	if data.SegmentID != "" {
		result, err := app.Orchestrator.ExtractSegment(ctx, data.SegmentID, uuid.NewString(), override)
		if err != nil {
			logger.Error("Segment extraction failed", "segment_id", data.SegmentID, "err", err)
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]any{
			"message": "Extraction finished",
			"segment": result,
		})
	}

	batch, err := app.Orchestrator.ExtractDocument(ctx, documentID, override)
	if err != nil {
		logger.Error("Document extraction failed", "document_id", documentID, "err", err)
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, extractResponse{
		Message: "Extraction finished",
		Batch:   batch,
	})
}
