package entity

import "time"

// Activity is one recorded event in the history of a submission or session
type Activity struct {
	ID            int64                  `json:"id"`
	EventID       string                 `json:"event_id"`
	EventType     string                 `json:"event_type"`
	SubjectID     string                 `json:"subject_id"`
	CorrelationID string                 `json:"correlation_id,omitempty"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	OccurredAt    time.Time              `json:"occurred_at"`
}
