package dto

import (
	"encoding/json"
	"time"
)

type QuestionCreateDTO struct {
	Text          string          `json:"text" binding:"required"`
	Type          string          `json:"type" binding:"required"`
	Section       string          `json:"section" binding:"required,oneof=listening reading language_use writing speaking"`
	OrderInExam   int             `json:"order_in_exam" binding:"required,min=1"`
	Options       json.RawMessage `json:"options"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	Rubric        json.RawMessage `json:"rubric"`
	Points        int             `json:"points" binding:"required,min=1"`
	MaxScore      *float64        `json:"max_score" binding:"omitempty,gt=0"`
	TaskType      *string         `json:"task_type"`
	Transcript    *string         `json:"transcript"`
	Passage       *string         `json:"passage"`
	AudioURL      *string         `json:"audio_url"`
	WordLimit     *int            `json:"word_limit" binding:"omitempty,min=1"`
}

type MockExamCreateDTO struct {
	Title           string              `json:"title" binding:"required"`
	Description     string              `json:"description,omitempty"`
	Level           string              `json:"level" binding:"required,oneof=A1 A2 B1 B2 C1 C2"`
	DurationMinutes int                 `json:"duration_minutes" binding:"required,min=1"`
	Questions       []QuestionCreateDTO `json:"questions" binding:"required,min=1,dive"`
}

type QuestionResponseDTO struct {
	ID          uint     `json:"id"`
	MockExamID  uint     `json:"mock_exam_id"`
	Text        string   `json:"text"`
	Type        string   `json:"type"`
	Section     string   `json:"section"`
	OrderInExam int      `json:"order_in_exam"`
	Points      int      `json:"points"`
	MaxScore    *float64 `json:"max_score,omitempty"`
	TaskType    *string  `json:"task_type,omitempty"`
}

type MockExamResponseDTO struct {
	ID              uint                  `json:"id"`
	Title           string                `json:"title"`
	Description     string                `json:"description,omitempty"`
	Level           string                `json:"level"`
	DurationMinutes int                   `json:"duration_minutes"`
	Questions       []QuestionResponseDTO `json:"questions,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
}

type MockExamSummaryDTO struct {
	ID              uint      `json:"id"`
	Title           string    `json:"title"`
	Level           string    `json:"level"`
	DurationMinutes int       `json:"duration_minutes"`
	QuestionCount   int       `json:"question_count"`
	CreatedAt       time.Time `json:"created_at"`
}

type GrantSubscriptionDTO struct {
	UserID       string     `json:"user_id" binding:"required"`
	StartedAt    *time.Time `json:"started_at"`
	DurationDays int        `json:"duration_days" binding:"required,min=1"`
}

type GrantPurchaseDTO struct {
	UserID      string    `json:"user_id" binding:"required"`
	ProductType string    `json:"product_type" binding:"required,oneof=mock_exam"`
	Uses        int       `json:"uses" binding:"required,min=1"`
	ExpiresAt   time.Time `json:"expires_at" binding:"required"`
}

type SubscriptionResponseDTO struct {
	ID        uint      `json:"id"`
	UserID    string    `json:"user_id"`
	PlanType  string    `json:"plan_type"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PurchaseResponseDTO struct {
	ID            uint      `json:"id"`
	UserID        string    `json:"user_id"`
	ProductType   string    `json:"product_type"`
	RemainingUses int       `json:"remaining_uses"`
	ExpiresAt     time.Time `json:"expires_at"`
}
