package emit

// Emitter receives observability events from workflow execution.
//
// Implementations should be thread-safe, non-blocking, and resilient: a
// misbehaving backend must never crash or stall the workflow. Emit must not
// panic; internal failures should be swallowed or logged locally.
//
// Provided implementations: LogEmitter (text/JSONL), NullEmitter (discard),
// BufferedEmitter (in-memory capture for tests), OTelEmitter (spans).
type Emitter interface {
	// Emit sends an event to the configured backend.
	Emit(event Event)
}
