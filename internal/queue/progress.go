package queue

import (
	"encoding/json"
	"fmt"

	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/logger"

	"github.com/rabbitmq/amqp091-go"
)

// TopicProgressSink forwards extraction progress events to the topic
// exchange so API consumers can subscribe per dataset or per document.
// Publishing is fire and forget; a broker hiccup never fails a job.
type TopicProgressSink struct {
	ch *amqp091.Channel
}

func NewTopicProgressSink(ch *amqp091.Channel) *TopicProgressSink {
	return &TopicProgressSink{ch: ch}
}

var _ extraction.ProgressSink = (*TopicProgressSink)(nil)

func (s *TopicProgressSink) Publish(event extraction.ProgressEvent) {
	if s == nil || s.ch == nil {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		logger.Warn("[Queue] Failed to marshal progress event", "batch_id", event.BatchID, "err", err)
		return
	}

	topic := fmt.Sprintf("extraction.progress.%s.%s", event.DatasetID, event.DocumentID)
	if err := PublishTopic(s.ch, topic, data); err != nil {
		logger.Warn("[Queue] Failed to publish progress event", "topic", topic, "stage", event.Stage, "err", err)
	}
}
