package event

import (
	"time"

	"github.com/google/uuid"
)

// Event is something that happened to a submission or a session
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	SubjectID     string                 `json:"subject_id"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event that starts its own correlation chain
func NewEvent(eventType Type, subjectID string, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, subjectID, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event inside an existing chain. A nil
// payload becomes an empty map.
func NewEventWithCorrelation(eventType Type, subjectID string, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		SubjectID:     subjectID,
		Payload:       payload,
		Timestamp:     time.Now(),
		CorrelationID: correlationID,
	}
}

// GetPayloadString returns a string payload value, or "" when absent or not a string
func (e *Event) GetPayloadString(key string) string {
	if str, ok := e.Payload[key].(string); ok {
		return str
	}
	return ""
}
