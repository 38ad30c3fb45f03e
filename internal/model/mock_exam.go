package model

import (
	"time"

	"gorm.io/gorm"
)

type MockExam struct {
	ID              uint           `gorm:"primarykey" json:"id"`
	Title           string         `json:"title" gorm:"not null;uniqueIndex"`
	Description     string         `json:"description,omitempty"`
	Level           string         `json:"level" gorm:"size:2"` // A1..C2
	DurationMinutes int            `json:"duration_minutes" gorm:"not null;default:0"`
	Questions       []Question     `json:"questions,omitempty" gorm:"foreignKey:MockExamID"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}
