package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question is a bank question owned by a MockExam. Legacy attempts without
// AttemptQuestion rows are graded directly against these.
type Question struct {
	ID            uint           `gorm:"primarykey" json:"id"`
	MockExamID    uint           `json:"mock_exam_id" gorm:"not null;index"`
	Text          string         `json:"text" gorm:"type:text;not null"`
	Type          string         `json:"type" gorm:"not null"` // "mcq", "gap_fill", "essay", "speaking_task"
	Section       Section        `json:"section" gorm:"not null"`
	OrderInExam   int            `json:"order_in_exam" gorm:"not null"`
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
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}
