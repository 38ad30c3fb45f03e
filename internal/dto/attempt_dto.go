package dto

import (
	"encoding/json"
	"time"
)

// AddressingMode says which id answers of an attempt are keyed by.
type AddressingMode string

const (
	// AddressByAttemptQuestion: answers are keyed by attempt_question_id.
	AddressByAttemptQuestion AddressingMode = "attempt_question"
	// AddressByBankQuestion: legacy attempts, answers keyed by bank question_id.
	AddressByBankQuestion AddressingMode = "bank_question"
)

func (m AddressingMode) UsesAttemptQuestionID() bool {
	return m == AddressByAttemptQuestion
}

type StartAttemptRequest struct {
	MockExamID uint `json:"mock_exam_id" binding:"required,gt=0"`
}

type SaveAnswerRequest struct {
	AttemptQuestionID *uint  `json:"attempt_question_id"`
	QuestionID        *uint  `json:"question_id"`
	AnswerText        string `json:"answer_text"`
}

type SaveAnswerResponse struct {
	AttemptID         uint   `json:"attempt_id"`
	AttemptQuestionID *uint  `json:"attempt_question_id,omitempty"`
	QuestionID        *uint  `json:"question_id,omitempty"`
	AnswerText        string `json:"answer_text"`
}

type SpeakingAudioResponse struct {
	AudioURL string `json:"audio_url"`
}

// SubmittedAnswer is an objective answer. Attached attempts use attempt_question_id,
// legacy attempts use question_id.
type SubmittedAnswer struct {
	AttemptQuestionID *uint  `json:"attempt_question_id"`
	QuestionID        *uint  `json:"question_id"`
	AnswerText        string `json:"answer_text"`
}

type SubmittedWriting struct {
	TaskID uint   `json:"task_id"`
	Text   string `json:"text"`
}

type SubmittedSpeaking struct {
	TaskID   uint    `json:"task_id"`
	Text     string  `json:"text"`
	AudioURL *string `json:"audio_url"`
}

type SubmitAttemptRequest struct {
	Answers  []SubmittedAnswer   `json:"answers"`
	Writing  []SubmittedWriting  `json:"writing"`
	Speaking []SubmittedSpeaking `json:"speaking"`
}

type ScoreSummary struct {
	AttemptID         uint    `json:"attempt_id"`
	TotalScore        float64 `json:"total_score"`
	MaxPossibleScore  float64 `json:"max_possible_score"`
	Percentage        float64 `json:"percentage"`
	CefrLevelAchieved string  `json:"cefr_level_achieved"`
	CefrFeedback      string  `json:"cefr_feedback"`
}

type MockExamSummary struct {
	ID              uint   `json:"id"`
	Title           string `json:"title"`
	Level           string `json:"level,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
}

// QuestionView is a question as served during an attempt: no answer key, no grading output.
type QuestionView struct {
	ID           uint            `json:"id"`
	Order        int             `json:"order"`
	QuestionText string          `json:"question_text"`
	Type         string          `json:"type"`
	Section      string          `json:"section,omitempty"`
	Options      json.RawMessage `json:"options,omitempty"`
	Rubric       json.RawMessage `json:"rubric,omitempty"`
	Points       int             `json:"points"`
	MaxScore     float64         `json:"max_score"`
	TaskType     *string         `json:"task_type,omitempty"`
	Passage      *string         `json:"passage,omitempty"`
	AudioURL     *string         `json:"audio_url,omitempty"`
	WordLimit    *int            `json:"word_limit,omitempty"`
}

// StoredAnswerView is what a learner sees of their own answer mid-exam.
type StoredAnswerView struct {
	AnswerText string  `json:"answer_text"`
	AudioURL   *string `json:"audio_url,omitempty"`
}

type AttemptView struct {
	ID                   uint                      `json:"id"`
	Status               string                    `json:"status"`
	Level                *string                   `json:"level,omitempty"`
	StartedAt            time.Time                 `json:"started_at"`
	MockExam             *MockExamSummary          `json:"mock_exam,omitempty"`
	UseAttemptQuestionID bool                      `json:"use_attempt_question_id"`
	Questions            []QuestionView            `json:"questions"`
	Answers              map[uint]StoredAnswerView `json:"answers"`
}

type QuestionResultView struct {
	QuestionView
	CorrectAnswer json.RawMessage `json:"correct_answer,omitempty"`
	Transcript    *string         `json:"transcript,omitempty"`
	AnswerText    string          `json:"answer_text"`
	AnswerAudio   *string         `json:"answer_audio_url,omitempty"`
	IsCorrect     *bool           `json:"is_correct,omitempty"`
	PointsEarned  *float64        `json:"points_earned,omitempty"`
	Score         *float64        `json:"score,omitempty"`
	AIFeedback    *string         `json:"ai_feedback,omitempty"`
}

type SectionScoreView struct {
	Score float64 `json:"score"`
	Max   float64 `json:"max"`
}

type ResultView struct {
	ID                   uint                        `json:"id"`
	Status               string                      `json:"status"`
	Level                *string                     `json:"level,omitempty"`
	StartedAt            time.Time                   `json:"started_at"`
	CompletedAt          *time.Time                  `json:"completed_at,omitempty"`
	MockExam             *MockExamSummary            `json:"mock_exam,omitempty"`
	UseAttemptQuestionID bool                        `json:"use_attempt_question_id"`
	TotalScore           *float64                    `json:"total_score,omitempty"`
	MaxPossibleScore     *float64                    `json:"max_possible_score,omitempty"`
	Percentage           *float64                    `json:"percentage,omitempty"`
	CefrLevelAchieved    *string                     `json:"cefr_level_achieved,omitempty"`
	CefrFeedback         *string                     `json:"cefr_feedback,omitempty"`
	SectionScores        map[string]SectionScoreView `json:"section_scores,omitempty"`
	Questions            []QuestionResultView        `json:"questions"`
}

type AttemptSummary struct {
	ID                uint             `json:"id"`
	Status            string           `json:"status"`
	Level             *string          `json:"level,omitempty"`
	MockExam          *MockExamSummary `json:"mock_exam,omitempty" copier:"-"`
	StartedAt         time.Time        `json:"started_at"`
	CompletedAt       *time.Time       `json:"completed_at,omitempty"`
	TotalScore        *float64         `json:"total_score,omitempty"`
	MaxPossibleScore  *float64         `json:"max_possible_score,omitempty"`
	Percentage        *float64         `json:"percentage,omitempty"`
	CefrLevelAchieved *string          `json:"cefr_level_achieved,omitempty"`
}

type AttemptListResponse struct {
	Items      []AttemptSummary `json:"items"`
	NextCursor *uint            `json:"next_cursor,omitempty"`
}
