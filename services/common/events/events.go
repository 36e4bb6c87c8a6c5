// services/common/events/events.go
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	AudioUploaded    EventType = "audio.uploaded"
	ArtifactUploaded EventType = "artifact.uploaded"
)

type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Key       string                 `json:"key"`
	Data      map[string]interface{} `json:"data"`
}

// NewEvent stamps a new event. key is the storage key it concerns and
// doubles as the message partition key.
func NewEvent(eventType EventType, source, key string, data map[string]interface{}) *Event {
	return &Event{
		ID:        "evt_" + uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Key:       key,
		Data:      data,
	}
}

func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
