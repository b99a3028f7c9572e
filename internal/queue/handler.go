package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signalhouse/magpie/pkg/logger"
	pgxstore "github.com/signalhouse/magpie/pkg/store/pgx"

	"github.com/rabbitmq/amqp091-go"
)

// staleAfterMinutes is how long a segment may sit in processing before
// its worker is presumed dead.
const staleAfterMinutes = 30

// RecoverStaleSegments resets segments stuck in processing back to
// pending and re-queues one extraction job per affected document.
// Called on worker startup and periodically while it runs.
func RecoverStaleSegments(
	ctx context.Context,
	ch *amqp091.Channel,
	store *pgxstore.Store,
) error {
	staleDocs, err := store.ResetStaleProcessing(ctx, staleAfterMinutes)
	if err != nil {
		return fmt.Errorf("failed to reset stale segments: %w", err)
	}

	if len(staleDocs) == 0 {
		logger.Debug("[Queue] No stale segments found")
		return nil
	}

	logger.Info("[Queue] Found documents with stale segments", "count", len(staleDocs))

	for _, doc := range staleDocs {
		queueData := ExtractJobMsg{
			Message:    "Recovered stale extraction",
			DatasetID:  doc.DatasetID,
			DocumentID: doc.DocumentID,
		}

		msgBytes, err := json.Marshal(queueData)
		if err != nil {
			logger.Error("[Queue] Failed to marshal extract job", "document_id", doc.DocumentID, "err", err)
			continue
		}

		if err := PublishFIFO(ch, ExtractQueue, msgBytes); err != nil {
			logger.Error("[Queue] Failed to republish extract job", "document_id", doc.DocumentID, "err", err)
			continue
		}

		logger.Info("[Queue] Recovered stale document", "dataset_id", doc.DatasetID, "document_id", doc.DocumentID)
	}

	return nil
}
