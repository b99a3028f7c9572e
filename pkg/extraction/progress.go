package extraction

// ProgressStage identifies a point in the extraction pipeline.
type ProgressStage string

const (
	ProgressStarted           ProgressStage = "started"
	ProgressProcessingSegment ProgressStage = "processing_segment"
	ProgressLLMCall           ProgressStage = "llm_call"
	ProgressCreatingNodes     ProgressStage = "creating_nodes"
	ProgressCreatingEdges     ProgressStage = "creating_edges"
	ProgressCompleted         ProgressStage = "completed"
	ProgressError             ProgressStage = "error"
)

// ProgressEvent is one fire-and-forget progress notification. Counts
// are cumulative for the batch the event belongs to.
type ProgressEvent struct {
	BatchID      string        `json:"batch_id,omitempty"`
	DatasetID    string        `json:"dataset_id"`
	DocumentID   string        `json:"document_id,omitempty"`
	SegmentID    string        `json:"segment_id,omitempty"`
	Stage        ProgressStage `json:"stage"`
	Message      string        `json:"message,omitempty"`
	NodesCreated int           `json:"nodes_created,omitempty"`
	EdgesCreated int           `json:"edges_created,omitempty"`
	Error        string        `json:"error,omitempty"`
}

// ProgressSink receives progress events. Publish must not block the
// pipeline; implementations drop events they cannot deliver.
type ProgressSink interface {
	Publish(event ProgressEvent)
}

func (o *Orchestrator) publish(event ProgressEvent) {
	if o.progress == nil {
		return
	}
	o.progress.Publish(event)
}
