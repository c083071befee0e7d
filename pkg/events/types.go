// Package events provides real-time progress delivery via WebSocket and
// PostgreSQL NOTIFY/LISTEN for cross-pod distribution.
//
// Progress events are append-only rows in execution_events, ordered by a
// per-execution sequence number. The publisher persists each event and
// broadcasts it via pg_notify in the same transaction, so a subscriber
// that combines catch-up (events with seq > last seen) with live NOTIFY
// delivery observes every event exactly once, in order. Duplicate
// delivery across the catchup/live boundary is possible; clients dedupe
// on seq.
package events

// Event types carried in the "type" field of every payload.
const (
	// EventTypeProgress is a structured pipeline progress record
	// (persisted + NOTIFY).
	EventTypeProgress = "execution.progress"

	// EventTypeStatus is an execution lifecycle transition. Persisted on
	// the execution channel and mirrored transiently to the global
	// channel for list pages.
	EventTypeStatus = "execution.status"
)

// GlobalExecutionsChannel carries transient status events for every
// execution. The executions list page subscribes here.
const GlobalExecutionsChannel = "executions"

// ExecutionChannel returns the channel name for one execution's events.
// Format: "execution:{execution_id}"
func ExecutionChannel(executionID string) string {
	return "execution:" + executionID
}

// ClientMessage is the JSON structure for client → server WebSocket
// messages.
type ClientMessage struct {
	Action  string `json:"action"`             // "subscribe", "unsubscribe", "catchup", "ping"
	Channel string `json:"channel,omitempty"`  // e.g. "execution:abc-123"
	LastSeq *int   `json:"last_seq,omitempty"` // resume point for catchup
}
