package taskqueue

import "github.com/google/uuid"

// Task type names, namespaced by feature.
const (
	TypeGenerationDispatchChunk = "generation:dispatch_chunk"
	TypeGenerationStatusSweep   = "generation:status_sweep"
	TypeGenerationTimeoutSweep  = "generation:timeout_sweep"
)

// DispatchChunkPayload carries one chunk of tasks to submit to the image
// provider. Chunks of the same job are enqueued with increasing delays.
type DispatchChunkPayload struct {
	JobID      uuid.UUID   `json:"job_id"`
	ChunkIndex int         `json:"chunk_index"`
	TaskIDs    []uuid.UUID `json:"task_ids"`
}
