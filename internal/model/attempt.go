package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
)

type Attempt struct {
	ID                uint              `gorm:"primarykey" json:"id"`
	UserID            string            `json:"user_id" gorm:"not null;index"`
	MockExamID        *uint             `json:"mock_exam_id,omitempty" gorm:"index"`
	MockExam          *MockExam         `json:"mock_exam,omitempty" gorm:"foreignKey:MockExamID"`
	Level             *string           `json:"level,omitempty" gorm:"size:2"`
	Status            AttemptStatus     `json:"status" gorm:"not null;default:'IN_PROGRESS';index"`
	StartedAt         time.Time         `json:"started_at" gorm:"not null"`
	CompletedAt       *time.Time        `json:"completed_at,omitempty"`
	TotalScore        *float64          `json:"total_score,omitempty"`
	MaxPossibleScore  *float64          `json:"max_possible_score,omitempty"`
	Percentage        *float64          `json:"percentage,omitempty"`
	CefrLevelAchieved *string           `json:"cefr_level_achieved,omitempty"`
	CefrFeedback      *string           `json:"cefr_feedback,omitempty" gorm:"type:text"`
	SectionScores     datatypes.JSON    `json:"section_scores,omitempty"`
	Questions         []AttemptQuestion `json:"questions,omitempty" gorm:"foreignKey:AttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	Answers           []Answer          `json:"answers,omitempty" gorm:"foreignKey:AttemptID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	DeletedAt         gorm.DeletedAt    `gorm:"index" json:"-"`
}

func (a *Attempt) IsCompleted() bool {
	return a.Status == AttemptStatusCompleted
}

// SectionScore is one entry of Attempt.SectionScores.
type SectionScore struct {
	Score float64 `json:"score"`
	Max   float64 `json:"max"`
}
