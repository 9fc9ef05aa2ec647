package origin

import "errors"

// Sentinel errors surfaced by Model.Request, matching spec §7's taxonomy:
// both are recoverable at the pipeline level — they show up in request
// metrics as successful=false, never as a crash.
var (
	// ErrOriginRejected is returned when the FIFO wait queue is already
	// at maxQueueSize; the request is rejected immediately.
	ErrOriginRejected = errors.New("origin: request rejected, queue full")

	// ErrOriginTimeout is returned when a request waited in the FIFO
	// queue longer than requestTimeout without acquiring a serving slot.
	ErrOriginTimeout = errors.New("origin: request timed out in queue")
)
