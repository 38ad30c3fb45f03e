package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"gorm.io/gorm"
)

// attemptContent is the resolved question set of one attempt. Exactly one of attached or
// bank is used, according to mode.
type attemptContent struct {
	mode     dto.AddressingMode
	attached []model.AttemptQuestion
	bank     []model.Question
}

func findOwnedAttempt(ctx context.Context, repo repository.AttemptRepository, attemptID uint, userID string) (*model.Attempt, error) {
	attempt, err := repo.FindByIDForUser(ctx, attemptID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load attempt %d: %w", attemptID, err)
	}
	return attempt, nil
}

// loadAttemptContent picks the attached questions when the attempt owns any, and the
// linked mock exam's bank otherwise.
func loadAttemptContent(ctx context.Context, questionRepo repository.QuestionRepository, attempt *model.Attempt) (*attemptContent, error) {
	if len(attempt.Questions) > 0 {
		return &attemptContent{mode: dto.AddressByAttemptQuestion, attached: attempt.Questions}, nil
	}
	content := &attemptContent{mode: dto.AddressByBankQuestion}
	if attempt.MockExamID == nil {
		return content, nil
	}
	bank, err := questionRepo.FindByMockExamID(ctx, *attempt.MockExamID)
	if err != nil {
		return nil, fmt.Errorf("failed to load bank questions for mock exam %d: %w", *attempt.MockExamID, err)
	}
	content.bank = bank
	return content, nil
}

func (c *attemptContent) contains(id uint) bool {
	if c.mode.UsesAttemptQuestionID() {
		for _, q := range c.attached {
			if q.ID == id {
				return true
			}
		}
		return false
	}
	for _, q := range c.bank {
		if q.ID == id {
			return true
		}
	}
	return false
}

// keyFor returns the id an answer is stored under in this attempt's addressing mode.
func (c *attemptContent) keyFor(a model.Answer) (uint, bool) {
	if c.mode.UsesAttemptQuestionID() {
		if a.AttemptQuestionID == nil {
			return 0, false
		}
		return *a.AttemptQuestionID, true
	}
	if a.QuestionID == nil {
		return 0, false
	}
	return *a.QuestionID, true
}

// newAnswer builds an answer row addressed by id in this attempt's mode.
func (c *attemptContent) newAnswer(attemptID, id uint) model.Answer {
	answer := model.Answer{AttemptID: attemptID}
	key := id
	if c.mode.UsesAttemptQuestionID() {
		answer.AttemptQuestionID = &key
	} else {
		answer.QuestionID = &key
	}
	return answer
}

func (c *attemptContent) answersByKey(answers []model.Answer) map[uint]model.Answer {
	out := make(map[uint]model.Answer, len(answers))
	for _, a := range answers {
		if key, ok := c.keyFor(a); ok {
			out[key] = a
		}
	}
	return out
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}

func attachedQuestionView(q model.AttemptQuestion) dto.QuestionView {
	return dto.QuestionView{
		ID:           q.ID,
		Order:        q.Order,
		QuestionText: q.QuestionText,
		Type:         q.Type,
		Section:      string(q.Section),
		Options:      rawJSON(q.Options),
		Rubric:       rawJSON(q.Rubric),
		Points:       q.Points,
		MaxScore:     q.EffectiveMaxScore(),
		TaskType:     q.TaskType,
		Passage:      q.Passage,
		AudioURL:     q.AudioURL,
		WordLimit:    q.WordLimit,
	}
}

// bankQuestionView exposes only what the legacy bank path ever carried.
func bankQuestionView(q model.Question) dto.QuestionView {
	return dto.QuestionView{
		ID:           q.ID,
		Order:        q.OrderInExam,
		QuestionText: q.Text,
		Type:         q.Type,
		Options:      rawJSON(q.Options),
		Points:       q.Points,
		MaxScore:     float64(q.Points),
	}
}

func mockExamSummary(exam *model.MockExam) *dto.MockExamSummary {
	if exam == nil {
		return nil
	}
	return &dto.MockExamSummary{
		ID:              exam.ID,
		Title:           exam.Title,
		Level:           exam.Level,
		DurationMinutes: exam.DurationMinutes,
	}
}
