package events

// Event type constants for kelindar/event.
const (
	TypePool uint32 = iota + 1
	TypeStreamStateChanged
	TypeFrame
	TypeSessionError
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// Pool actions.
const (
	PoolCreated  = "created"
	PoolReleased = "released"
)

// PoolEvent is published when a session's buffer pool is allocated or released.
type PoolEvent struct {
	SessionID string `json:"session_id" example:"5f0c7a1e-2b7d-4c55-9a57-3f0e1f2a9c11" doc:"Capture session identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Path to the video device"`
	Action    string `json:"action" example:"created" doc:"Action type: created, released"`
	Category  string `json:"category" example:"capture" doc:"Resolved buffer category"`
	Memory    string `json:"memory" example:"mmap" doc:"Memory model"`
	Requested uint32 `json:"requested" example:"4" doc:"Buffers requested"`
	Buffers   int    `json:"buffers" example:"4" doc:"Buffers granted"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for PoolEvent.
func (e PoolEvent) Type() uint32 { return TypePool }

// StreamStateChangedEvent represents a stream being switched on or off.
type StreamStateChangedEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Path to the video device"`
	Streaming bool   `json:"streaming" example:"true" doc:"Whether the stream is on"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StreamStateChangedEvent.
func (e StreamStateChangedEvent) Type() uint32 { return TypeStreamStateChanged }

// FrameEvent is published for every dequeued buffer.
type FrameEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Path to the video device"`
	Index     uint32 `json:"index" example:"2" doc:"Buffer index"`
	Sequence  uint32 `json:"sequence" example:"118" doc:"Driver frame sequence number"`
	BytesUsed int    `json:"bytes_used" example:"614400" doc:"Payload bytes across all planes"`
	Errored   bool   `json:"errored" doc:"Driver flagged the buffer as corrupted"`
	InFlight  int    `json:"in_flight" example:"3" doc:"Buffers held by the driver after the dequeue"`
	Pending   int    `json:"pending" example:"0" doc:"Buffers waiting for an in-flight slot"`
	Captured  string `json:"captured" example:"2025-01-27T10:30:00.016Z" doc:"Driver timestamp"`
}

// Type returns the event type identifier for FrameEvent.
func (e FrameEvent) Type() uint32 { return TypeFrame }

// SessionErrorEvent is published when a session step fails.
type SessionErrorEvent struct {
	SessionID string `json:"session_id" doc:"Capture session identifier"`
	Device    string `json:"device" example:"/dev/video0" doc:"Path to the video device"`
	Op        string `json:"op" example:"VIDIOC_REQBUFS" doc:"Failed operation"`
	Code      string `json:"code" example:"INSUFFICIENT_BUFFERS" doc:"Error code"`
	Error     string `json:"error" doc:"Detailed error description"`
	Timestamp string `json:"timestamp" example:"2025-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for SessionErrorEvent.
func (e SessionErrorEvent) Type() uint32 { return TypeSessionError }
