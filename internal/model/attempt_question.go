package model

import (
	"time"

	"gorm.io/datatypes"
)

// AttemptQuestion is the frozen copy of a question as it was delivered in one attempt.
type AttemptQuestion struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	AttemptID     uint           `json:"attempt_id" gorm:"not null;index"`
	SourceID      *uint          `json:"source_id,omitempty"`
	Order         int            `json:"order" gorm:"column:order_index;not null"`
	QuestionText  string         `json:"question_text" gorm:"type:text;not null"`
	Type          string         `json:"type" gorm:"not null"`
	Section       Section        `json:"section" gorm:"not null"`
	Options       datatypes.JSON `json:"options,omitempty"`
	CorrectAnswer datatypes.JSON `json:"correct_answer,omitempty"`
	Rubric        datatypes.JSON `json:"rubric,omitempty"`
	Points        int            `json:"points" gorm:"not null;default:1"`
	MaxScore      *float64       `json:"max_score,omitempty"`
	TaskType      *string        `json:"task_type,omitempty"`
	Transcript    *string        `json:"transcript,omitempty" gorm:"type:text"`
	Passage       *string        `json:"passage,omitempty" gorm:"type:text"`
	AudioURL      *string        `json:"audio_url,omitempty"`
	WordLimit     *int           `json:"word_limit,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// EffectiveMaxScore is MaxScore, or Points when MaxScore is unset.
func (q *AttemptQuestion) EffectiveMaxScore() float64 {
	if q.MaxScore != nil && *q.MaxScore > 0 {
		return *q.MaxScore
	}
	return float64(q.Points)
}
