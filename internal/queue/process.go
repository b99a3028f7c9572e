package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/google/uuid"
)

// ProcessExtractMessage runs one extraction job. A returned error sends
// the message through the retry cycle; segment status is already the
// idempotency marker, so re-running a partially finished job is safe.
func ProcessExtractMessage(
	ctx context.Context,
	orchestrator *extraction.Orchestrator,
	msg string,
) error {
	data := new(ExtractJobMsg)
	if err := json.Unmarshal([]byte(msg), data); err != nil {
		return fmt.Errorf("failed to decode extract job: %w", err)
	}
	if data.DocumentID == "" {
		return fmt.Errorf("extract job is missing document_id")
	}

	if data.SegmentID != "" {
		batchID := data.BatchID
		if batchID == "" {
			batchID = uuid.NewString()
		}
		result, err := orchestrator.ExtractSegment(ctx, data.SegmentID, batchID, data.Config)
		if err != nil {
			return err
		}
		logger.Info("[Queue] Segment extraction finished",
			"document_id", data.DocumentID,
			"segment_id", result.SegmentID,
			"skipped", result.Skipped,
			"nodes", result.NodesCreated,
			"edges", result.EdgesCreated,
		)
		return nil
	}

	result, err := orchestrator.ExtractDocument(ctx, data.DocumentID, data.Config)
	if err != nil {
		return err
	}

	logger.Info("[Queue] Document extraction finished",
		"document_id", data.DocumentID,
		"batch_id", result.BatchID,
		"segments", result.Segments,
		"completed", result.Completed,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"nodes", result.NodesCreated,
		"edges", result.EdgesCreated,
	)

	// Failed segments stay in error state and are reported through the
	// progress topic. The job itself succeeded, so the message is acked
	// rather than retried as a whole.
	for _, e := range result.Errors {
		logger.Warn("[Queue] Segment failed during batch", "document_id", data.DocumentID, "batch_id", result.BatchID, "err", e)
	}

	return nil
}
