package model

import (
	"time"
)

// AudioSubmittedSentinel marks a speaking answer that has audio but no text yet.
const AudioSubmittedSentinel = "[Audio yuklandi]"

// Answer holds exactly one of AttemptQuestionID or QuestionID, matching the
// addressing mode of its attempt.
type Answer struct {
	ID                uint      `gorm:"primarykey" json:"id"`
	AttemptID         uint      `json:"attempt_id" gorm:"not null;uniqueIndex:idx_answers_attempt_aq;uniqueIndex:idx_answers_attempt_q"`
	AttemptQuestionID *uint     `json:"attempt_question_id,omitempty" gorm:"uniqueIndex:idx_answers_attempt_aq"`
	QuestionID        *uint     `json:"question_id,omitempty" gorm:"uniqueIndex:idx_answers_attempt_q"`
	AnswerText        string    `json:"answer_text" gorm:"type:text;not null;default:''"`
	AudioURL          *string   `json:"audio_url,omitempty"`
	IsCorrect         *bool     `json:"is_correct,omitempty"`
	PointsEarned      *float64  `json:"points_earned,omitempty"`
	Score             *float64  `json:"score,omitempty"`
	AIFeedback        *string   `json:"ai_feedback,omitempty" gorm:"type:text"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
