package events

import "time"

type EventType string

const (
	AttemptCompleted EventType = "attempt.completed"
	UsageRecorded    EventType = "usage.recorded"

	eventSource  = "cefrexam-api"
	eventVersion = "1.0"
)

// Envelope is the JSON body of every published message.
type Envelope struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Source    string      `json:"source"`
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

type AttemptCompletedEvent struct {
	AttemptID        uint      `json:"attempt_id"`
	UserID           string    `json:"user_id"`
	MockExamID       *uint     `json:"mock_exam_id,omitempty"`
	TotalScore       float64   `json:"total_score"`
	MaxPossibleScore float64   `json:"max_possible_score"`
	Percentage       float64   `json:"percentage"`
	CefrLevel        string    `json:"cefr_level"`
	CompletedAt      time.Time `json:"completed_at"`
}

type UsageRecordedEvent struct {
	UserID     string    `json:"user_id"`
	UsageType  string    `json:"usage_type"`
	PlanType   string    `json:"plan_type"`
	RecordedAt time.Time `json:"recorded_at"`
}
