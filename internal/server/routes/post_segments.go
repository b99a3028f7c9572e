package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/internal/util"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/labstack/echo/v4"
)

// CreateSegmentsHandler ingests a batch of segments for a document. New
// segments start in pending state and are picked up by the next
// extraction run.
func CreateSegmentsHandler(c echo.Context) error {
	type segmentBody struct {
		ID         string `json:"id"`
		Content    string `json:"content" validate:"required"`
		Platform   string `json:"platform"`
		Author     string `json:"author"`
		Date       string `json:"date"`
		Engagement string `json:"engagement"`
	}

	type createSegmentsBody struct {
		Segments []segmentBody `json:"segments" validate:"required,min=1,dive"`
	}

	type createSegmentsResponse struct {
		Message  string           `json:"message"`
		Segments []common.Segment `json:"segments,omitempty"`
	}

	datasetID := c.Param("dataset_id")
	documentID := c.Param("document_id")

	data := new(createSegmentsBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSegmentsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, createSegmentsResponse{
			Message: "Invalid request body",
		})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	created := make([]common.Segment, 0, len(data.Segments))
	for _, in := range data.Segments {
		segment := common.Segment{
			ID:         in.ID,
			DatasetID:  datasetID,
			DocumentID: documentID,
			Content:    util.SanitizePostgresText(in.Content),
			Platform:   in.Platform,
			Author:     in.Author,
			Date:       in.Date,
			Engagement: in.Engagement,
			Status:     common.SegmentPending,
		}
		if err := app.Store.CreateSegment(ctx, &segment); err != nil {
			logger.Error("Failed to create segment", "document_id", documentID, "segment_id", in.ID, "err", err)
			return jsonError(c, err)
		}
		created = append(created, segment)
	}

	return c.JSON(http.StatusCreated, createSegmentsResponse{
		Message:  "Segments created",
		Segments: created,
	})
}
