package dto

import "time"

type AccessDecisionResponse struct {
	Allowed  bool   `json:"allowed"`
	Reason   string `json:"reason,omitempty"`
	PlanType string `json:"plan_type"`
}

type SubscriptionSummary struct {
	PlanType  string    `json:"plan_type"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type PurchaseSummary struct {
	TotalRemaining int        `json:"total_remaining"`
	NearestExpiry  *time.Time `json:"nearest_expiry,omitempty"`
}

type UsageLimit struct {
	Used  int `json:"used"`
	Limit int `json:"limit"`
}

type UsageSummary struct {
	MockExam   UsageLimit `json:"mock_exam"`
	WritingAI  UsageLimit `json:"writing_ai"`
	SpeakingAI UsageLimit `json:"speaking_ai"`
	AITutor    UsageLimit `json:"ai_tutor"`
}

type AccessFlags struct {
	FullAccess bool `json:"full_access"`
	MockExam   bool `json:"mock_exam"`
	WritingAI  bool `json:"writing_ai"`
	SpeakingAI bool `json:"speaking_ai"`
	AITutor    bool `json:"ai_tutor"`
}

type AccessStatusResponse struct {
	PlanType     string               `json:"plan_type"`
	Subscription *SubscriptionSummary `json:"subscription,omitempty"`
	Purchases    PurchaseSummary      `json:"purchases"`
	Usage        UsageSummary         `json:"usage"`
	Access       AccessFlags          `json:"access"`
}

type WritingPracticeRequest struct {
	Level    string  `json:"level" binding:"required,oneof=A1 A2 B1 B2 C1 C2"`
	Prompt   string  `json:"prompt" binding:"required"`
	MaxScore float64 `json:"max_score" binding:"required,gt=0"`
	Text     string  `json:"text" binding:"required"`
}

type PracticeGradeResponse struct {
	Score      float64 `json:"score"`
	MaxScore   float64 `json:"max_score"`
	Feedback   string  `json:"feedback"`
	Transcript string  `json:"transcript,omitempty"`
}

type TutorMessageRequest struct {
	Message string `json:"message" binding:"required,max=4000"`
}

type TutorMessageResponse struct {
	Reply string `json:"reply"`
}

type LanguagePreferenceRequest struct {
	Language string `json:"language" binding:"required,min=2,max=5"`
}

type ProfileResponse struct {
	UserID              string     `json:"user_id"`
	Language            string     `json:"language"`
	TotalExamsTaken     int        `json:"total_exams_taken"`
	CurrentCefrEstimate *string    `json:"current_cefr_estimate,omitempty"`
	LastActivityAt      *time.Time `json:"last_activity_at,omitempty"`
}
