package messaging

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/creator-crawler-service/common/constants"
)

// CommandMessage is the envelope of a crawler command.
type CommandMessage struct {
	Action  constants.ActionType `json:"action"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// Notification is a user-facing status message.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

func (n *Notification) Decode(data []byte) error {
	if err := json.Unmarshal(data, n); err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}
	return nil
}
