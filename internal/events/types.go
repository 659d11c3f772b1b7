package events

// Event type constants for kelindar/event.
const (
	TypeCastState uint32 = iota + 1
	TypeEncoderState
	TypeTickerMode
	TypeViewer
	TypeEncoderMetrics
	TypeLogEntry
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CastStateChangedEvent is published when the caster starts or stops.
type CastStateChangedEvent struct {
	Running   bool   `json:"running" example:"true" doc:"Whether rendering and distribution are active"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CastStateChangedEvent.
func (e CastStateChangedEvent) Type() uint32 { return TypeCastState }

// EncoderStateChangedEvent reports an HLS encoder session transition.
type EncoderStateChangedEvent struct {
	State     string `json:"state" example:"running" doc:"stopped, starting, running or stopping"`
	Error     string `json:"error,omitempty" doc:"Why the session ended, when it ended abnormally"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for EncoderStateChangedEvent.
func (e EncoderStateChangedEvent) Type() uint32 { return TypeEncoderState }

// TickerModeChangedEvent is published after every completed ticker pass.
type TickerModeChangedEvent struct {
	From      string `json:"from" example:"quotes" doc:"Mode of the pass that finished"`
	To        string `json:"to" example:"news" doc:"Mode of the next pass"`
	Passes    uint64 `json:"passes" example:"12" doc:"Completed passes so far"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for TickerModeChangedEvent.
func (e TickerModeChangedEvent) Type() uint32 { return TypeTickerMode }

// ViewerEvent is published when a multipart JPEG client connects or leaves.
type ViewerEvent struct {
	Action    string `json:"action" example:"connected" doc:"connected or disconnected"`
	Remote    string `json:"remote" example:"192.0.2.10:53122" doc:"Client address"`
	Clients   int    `json:"clients" example:"3" doc:"Open connections after this change"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ViewerEvent.
func (e ViewerEvent) Type() uint32 { return TypeViewer }

// EncoderMetricsEvent carries periodic encoder statistics.
type EncoderMetricsEvent struct {
	EventType       string `json:"type"`
	State           string `json:"state"`
	FPS             string `json:"fps"`
	Speed           string `json:"speed"`
	DroppedFrames   string `json:"dropped_frames"`
	DuplicateFrames string `json:"duplicate_frames"`
	QueueDepth      int    `json:"queue_depth"`
	QueueDropped    uint64 `json:"queue_dropped"`
}

// Type returns the event type identifier for EncoderMetricsEvent.
func (e EncoderMetricsEvent) Type() uint32 { return TypeEncoderMetrics }

// LogEntryEvent represents a log entry for SSE streaming.
type LogEntryEvent struct {
	Seq        uint64         `json:"seq" example:"42" doc:"Monotonic sequence number for deduplication"`
	Timestamp  string         `json:"timestamp" example:"2025-01-09T10:30:00.123Z" doc:"Log timestamp"`
	Level      string         `json:"level" example:"info" doc:"Log level"`
	Module     string         `json:"module" example:"hls" doc:"Source module"`
	Message    string         `json:"message" doc:"Log message"`
	Attributes map[string]any `json:"attributes,omitempty" doc:"Structured log attributes"`
}

// Type returns the event type identifier for LogEntryEvent.
func (e LogEntryEvent) Type() uint32 { return TypeLogEntry }
