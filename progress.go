package doctran

import "unicode/utf8"

// EventKind labels a progress event.
type EventKind string

const (
	EventJobStarted      EventKind = "job_started"
	EventChunkTranslated EventKind = "chunk_translated"
	EventBatchCompleted  EventKind = "batch_completed"
	EventBatchExported   EventKind = "batch_exported"
	EventJobCompleted    EventKind = "job_completed"
)

// previewLimit caps the translated-text excerpt carried by
// chunk_translated events.
const previewLimit = 200

// Event is one progress notification for a running job.
type Event struct {
	Kind  EventKind `json:"kind"`
	JobID string    `json:"job_id"`

	// ChunkID and Preview are set for chunk_translated.
	ChunkID int    `json:"chunk_id,omitempty"`
	Preview string `json:"preview,omitempty"`

	// Batch is set for batch_completed and batch_exported.
	Batch int `json:"batch,omitempty"`

	Completed int `json:"completed"`
	Total     int `json:"total"`

	// OutputPath is set for batch_exported and job_completed.
	OutputPath string `json:"output_path,omitempty"`
}

// Sink receives progress events. Publish must not block for long; it
// runs on the job's goroutines.
type Sink interface {
	Publish(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

func (f SinkFunc) Publish(ev Event) { f(ev) }

// publish fans an event out to every sink. A broken sink never takes
// the job down with it.
func (p *Pipeline) publish(ev Event) {
	for _, s := range p.sinks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Warn("progress sink panicked", "kind", ev.Kind, "panic", r)
				}
			}()
			s.Publish(ev)
		}()
	}
}

// preview truncates s to the event excerpt limit on a rune boundary.
func preview(s string) string {
	if utf8.RuneCountInString(s) <= previewLimit {
		return s
	}
	runes := 0
	for i := range s {
		if runes == previewLimit {
			return s[:i]
		}
		runes++
	}
	return s
}
