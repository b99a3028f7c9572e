package queue

import "github.com/signalhouse/magpie/pkg/extraction"

// ExtractJobMsg is the payload on extract_queue. SegmentID narrows the
// job to a single segment; empty means every pending segment of the
// document. Config overrides the worker's extraction defaults field by
// field.
type ExtractJobMsg struct {
	Message    string             `json:"message"`
	DatasetID  string             `json:"dataset_id"`
	DocumentID string             `json:"document_id"`
	SegmentID  string             `json:"segment_id,omitempty"`
	BatchID    string             `json:"batch_id,omitempty"`
	Config     *extraction.Config `json:"config,omitempty"`
}
