package pipeline

import (
	"time"

	"github.com/converseai/converse/internal/inbound"
)

// Task is the ephemeral unit of work for one pipeline run. It lives only for
// the duration of the run and is never persisted.
type Task struct {
	Identity          string
	Receiver          string
	Content           string
	ExternalMessageID string
	DisplayName       string
	ReceivedAt        time.Time
}

// TaskFromInbound converts a normalized inbound message into a task.
func TaskFromInbound(msg inbound.Message) Task {
	return Task{
		Identity:          msg.Sender,
		Receiver:          msg.Receiver,
		Content:           msg.Content,
		ExternalMessageID: msg.ExternalID,
		DisplayName:       msg.DisplayName,
		ReceivedAt:        msg.ReceivedAt,
	}
}
