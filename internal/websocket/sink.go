package websocket

import "riskdash/internal/operations"

// JobSink forwards job progress to every connected client
func JobSink(h *Hub) operations.ProgressSink {
	return operations.SinkFunc(func(u operations.ProgressUpdate) {
		h.Broadcast(Message{
			Type:      u.Type,
			JobID:     u.JobID,
			Page:      u.Page,
			Stage:     u.Stage,
			Progress:  u.Progress,
			Status:    string(u.Status),
			Message:   u.Message,
			Error:     u.Error,
			Timestamp: u.Timestamp,
		})
	})
}
