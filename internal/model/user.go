package model

import "time"

// UserProgress is the per-user rollup updated after every completed attempt.
type UserProgress struct {
	ID                  uint      `gorm:"primarykey" json:"id"`
	UserID              string    `json:"user_id" gorm:"not null;uniqueIndex"`
	TotalExamsTaken     int       `json:"total_exams_taken" gorm:"not null;default:0"`
	CurrentCefrEstimate *string   `json:"current_cefr_estimate,omitempty"`
	LastActivityAt      time.Time `json:"last_activity_at"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

type UserProfile struct {
	UserID             string    `gorm:"primarykey" json:"user_id"`
	LanguagePreference string    `json:"language_preference" gorm:"not null;default:'en'"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}
