package model

import "time"

type PlanType string

const (
	PlanFree     PlanType = "free"
	PlanStandard PlanType = "standard"
	PlanPro      PlanType = "pro"
)

type UsageType string

const (
	UsageMockExam   UsageType = "mock_exam"
	UsageWritingAI  UsageType = "writing_ai"
	UsageSpeakingAI UsageType = "speaking_ai"
	UsageAITutor    UsageType = "ai_tutor"
)

const ProductMockExam = "mock_exam"

// Subscription is a Pro plan billing record.
type Subscription struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	UserID    string    `json:"user_id" gorm:"not null;index"`
	PlanType  PlanType  `json:"plan_type" gorm:"not null;default:'pro'"`
	Status    string    `json:"status" gorm:"not null;default:'active'"`
	StartedAt time.Time `json:"started_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Purchase is a Standard plan one-off entitlement.
type Purchase struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UserID        string    `json:"user_id" gorm:"not null;index"`
	ProductType   string    `json:"product_type" gorm:"not null"`
	RemainingUses int       `json:"remaining_uses" gorm:"not null;default:0"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type UsageTracking struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	UserID      string    `json:"user_id" gorm:"not null;uniqueIndex:idx_usage_user_type_period"`
	UsageType   UsageType `json:"usage_type" gorm:"not null;uniqueIndex:idx_usage_user_type_period"`
	PeriodStart time.Time `json:"period_start" gorm:"not null;uniqueIndex:idx_usage_user_type_period"`
	PeriodEnd   time.Time `json:"period_end" gorm:"not null"`
	UsedCount   int       `json:"used_count" gorm:"not null;default:0"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
