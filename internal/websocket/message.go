package websocket

import "time"

// Message types sent by the hub itself. Job messages carry the job
// event type.
const (
	TypeConnection = "connection"
)

// Message is the JSON frame pushed to clients
type Message struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id,omitempty"`
	Page      string    `json:"page,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Status    string    `json:"status,omitempty"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	TraceID   string    `json:"trace_id,omitempty"`
}
