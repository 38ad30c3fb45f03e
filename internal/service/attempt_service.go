package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jinzhu/copier"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/lshigami/cefrexam/internal/storage"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

const (
	DefaultAttemptPageSize = 20
	MaxAttemptPageSize     = 50
)

type AttemptService interface {
	StartAttempt(ctx context.Context, userID string, req dto.StartAttemptRequest) (*dto.AttemptView, error)
	GetAttemptView(ctx context.Context, attemptID uint, userID string) (*dto.AttemptView, error)
	SaveAnswer(ctx context.Context, attemptID uint, userID string, req dto.SaveAnswerRequest) (*dto.SaveAnswerResponse, error)
	SaveSpeakingAudio(ctx context.Context, attemptID uint, userID string, attemptQuestionID uint, upload storage.AudioUpload) (*dto.SpeakingAudioResponse, error)
	ListAttempts(ctx context.Context, userID string, cursor uint, limit int) (*dto.AttemptListResponse, error)
	GetResultsView(ctx context.Context, attemptID uint, userID string) (*dto.ResultView, error)
}

type attemptService struct {
	attemptRepo  repository.AttemptRepository
	answerRepo   repository.AnswerRepository
	questionRepo repository.QuestionRepository
	mockExamRepo repository.MockExamRepository
	access       AccessService
	audio        storage.AudioStorage
	now          func() time.Time
}

func NewAttemptService(
	attemptRepo repository.AttemptRepository,
	answerRepo repository.AnswerRepository,
	questionRepo repository.QuestionRepository,
	mockExamRepo repository.MockExamRepository,
	access AccessService,
	audio storage.AudioStorage,
) AttemptService {
	return &attemptService{
		attemptRepo:  attemptRepo,
		answerRepo:   answerRepo,
		questionRepo: questionRepo,
		mockExamRepo: mockExamRepo,
		access:       access,
		audio:        audio,
		now:          time.Now,
	}
}

func (s *attemptService) StartAttempt(ctx context.Context, userID string, req dto.StartAttemptRequest) (*dto.AttemptView, error) {
	exam, err := s.mockExamRepo.FindByIDWithQuestions(ctx, req.MockExamID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMockExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load mock exam %d: %w", req.MockExamID, err)
	}
	if len(exam.Questions) == 0 {
		return nil, ErrMockExamEmpty
	}

	if decision := s.access.CanStartMockExam(ctx, userID); !decision.Allowed {
		log.Info().Str("userID", userID).Str("plan", string(decision.PlanType)).Str("reason", decision.Reason).Msg("StartAttempt: denied")
		return nil, decision.Err()
	}

	questions := make([]model.AttemptQuestion, 0, len(exam.Questions))
	for i, q := range exam.Questions {
		sourceID := q.ID
		questions = append(questions, model.AttemptQuestion{
			SourceID:      &sourceID,
			Order:         i + 1,
			QuestionText:  q.Text,
			Type:          q.Type,
			Section:       q.Section,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Rubric:        q.Rubric,
			Points:        q.Points,
			MaxScore:      q.MaxScore,
			TaskType:      q.TaskType,
			Transcript:    q.Transcript,
			Passage:       q.Passage,
			AudioURL:      q.AudioURL,
			WordLimit:     q.WordLimit,
		})
	}
	level := exam.Level
	attempt := &model.Attempt{
		UserID:     userID,
		MockExamID: &exam.ID,
		Level:      &level,
		Status:     model.AttemptStatusInProgress,
		StartedAt:  s.now(),
		Questions:  questions,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("failed to create attempt: %w", err)
	}
	attempt.MockExam = exam
	if err := s.access.RecordMockExamUsage(ctx, userID); err != nil {
		// The attempt exists; a missed decrement only loosens the soft quota.
		log.Error().Err(err).Str("userID", userID).Uint("attemptID", attempt.ID).Msg("StartAttempt: failed to record mock exam usage")
	}
	log.Info().Str("userID", userID).Uint("attemptID", attempt.ID).Uint("mockExamID", exam.ID).Msg("Attempt started")

	content := &attemptContent{mode: dto.AddressByAttemptQuestion, attached: attempt.Questions}
	return buildAttemptView(attempt, content), nil
}

func (s *attemptService) GetAttemptView(ctx context.Context, attemptID uint, userID string) (*dto.AttemptView, error) {
	attempt, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	content, err := loadAttemptContent(ctx, s.questionRepo, attempt)
	if err != nil {
		return nil, err
	}
	return buildAttemptView(attempt, content), nil
}

func buildAttemptView(attempt *model.Attempt, content *attemptContent) *dto.AttemptView {
	view := &dto.AttemptView{
		ID:                   attempt.ID,
		Status:               string(attempt.Status),
		Level:                attempt.Level,
		StartedAt:            attempt.StartedAt,
		MockExam:             mockExamSummary(attempt.MockExam),
		UseAttemptQuestionID: content.mode.UsesAttemptQuestionID(),
		Questions:            make([]dto.QuestionView, 0, len(content.attached)+len(content.bank)),
		Answers:              make(map[uint]dto.StoredAnswerView),
	}
	if content.mode.UsesAttemptQuestionID() {
		for _, q := range content.attached {
			view.Questions = append(view.Questions, attachedQuestionView(q))
		}
	} else {
		for _, q := range content.bank {
			view.Questions = append(view.Questions, bankQuestionView(q))
		}
	}
	// Grading output stays hidden until results are requested.
	for key, a := range content.answersByKey(attempt.Answers) {
		view.Answers[key] = dto.StoredAnswerView{AnswerText: a.AnswerText, AudioURL: a.AudioURL}
	}
	return view
}

func (s *attemptService) SaveAnswer(ctx context.Context, attemptID uint, userID string, req dto.SaveAnswerRequest) (*dto.SaveAnswerResponse, error) {
	attempt, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotInProgress
	}
	if req.AttemptQuestionID == nil && req.QuestionID == nil {
		return nil, ErrMissingQuestionID
	}

	content, err := loadAttemptContent(ctx, s.questionRepo, attempt)
	if err != nil {
		return nil, err
	}
	var id uint
	if content.mode.UsesAttemptQuestionID() {
		if req.AttemptQuestionID == nil {
			return nil, ErrWrongAddressing
		}
		id = *req.AttemptQuestionID
	} else {
		if req.QuestionID == nil {
			return nil, ErrWrongAddressing
		}
		id = *req.QuestionID
	}
	if !content.contains(id) {
		return nil, ErrQuestionNotInAttempt
	}

	answer := content.newAnswer(attempt.ID, id)
	answer.AnswerText = req.AnswerText
	if err := s.answerRepo.Upsert(ctx, &answer, "answer_text"); err != nil {
		log.Error().Err(err).Uint("attemptID", attempt.ID).Uint("questionID", id).Msg("SaveAnswer: upsert failed")
		return nil, fmt.Errorf("failed to save answer: %w", err)
	}
	return &dto.SaveAnswerResponse{
		AttemptID:         attempt.ID,
		AttemptQuestionID: answer.AttemptQuestionID,
		QuestionID:        answer.QuestionID,
		AnswerText:        answer.AnswerText,
	}, nil
}

func (s *attemptService) SaveSpeakingAudio(ctx context.Context, attemptID uint, userID string, attemptQuestionID uint, upload storage.AudioUpload) (*dto.SpeakingAudioResponse, error) {
	attempt, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.attemptRepo.FindAttemptQuestion(ctx, attempt.ID, attemptQuestionID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrQuestionNotInAttempt
		}
		return nil, fmt.Errorf("failed to load attempt question %d: %w", attemptQuestionID, err)
	}
	if attempt.Status != model.AttemptStatusInProgress {
		return nil, ErrAttemptNotInProgress
	}
	if err := s.audio.Validate(upload); err != nil {
		return nil, uploadError(err)
	}

	audioURL, err := s.audio.SaveAnswerAudio(attempt.ID, attemptQuestionID, upload)
	if err != nil {
		if errors.Is(err, storage.ErrAudioTooLarge) || errors.Is(err, storage.ErrUnsupportedAudio) {
			return nil, uploadError(err)
		}
		log.Error().Err(err).Uint("attemptID", attempt.ID).Uint("attemptQuestionID", attemptQuestionID).Msg("SaveSpeakingAudio: storage failed")
		return nil, fmt.Errorf("failed to store audio: %w", err)
	}

	aqID := attemptQuestionID
	answer := model.Answer{
		AttemptID:         attempt.ID,
		AttemptQuestionID: &aqID,
		AnswerText:        model.AudioSubmittedSentinel,
		AudioURL:          &audioURL,
	}
	if err := s.answerRepo.Upsert(ctx, &answer, "audio_url", "answer_text"); err != nil {
		return nil, fmt.Errorf("failed to link audio to answer: %w", err)
	}
	log.Info().Uint("attemptID", attempt.ID).Uint("attemptQuestionID", aqID).Str("audioURL", audioURL).Msg("Speaking audio stored")
	return &dto.SpeakingAudioResponse{AudioURL: audioURL}, nil
}

func uploadError(err error) error {
	if errors.Is(err, storage.ErrAudioTooLarge) {
		return fmt.Errorf("%w: %v", ErrUploadTooLarge, err)
	}
	return fmt.Errorf("%w: %v", ErrUploadRejected, err)
}

func (s *attemptService) ListAttempts(ctx context.Context, userID string, cursor uint, limit int) (*dto.AttemptListResponse, error) {
	limit = ClampPageSize(limit)
	attempts, err := s.attemptRepo.ListByUser(ctx, userID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}

	resp := &dto.AttemptListResponse{Items: make([]dto.AttemptSummary, 0, len(attempts))}
	for i := range attempts {
		var item dto.AttemptSummary
		if err := copier.Copy(&item, &attempts[i]); err != nil {
			return nil, fmt.Errorf("error preparing attempt summary: %w", err)
		}
		item.MockExam = mockExamSummary(attempts[i].MockExam)
		resp.Items = append(resp.Items, item)
	}
	if len(attempts) == limit {
		next := attempts[len(attempts)-1].ID
		resp.NextCursor = &next
	}
	return resp, nil
}

// ClampPageSize applies the default for non-positive sizes and caps at MaxAttemptPageSize.
func ClampPageSize(limit int) int {
	if limit <= 0 {
		return DefaultAttemptPageSize
	}
	if limit > MaxAttemptPageSize {
		return MaxAttemptPageSize
	}
	return limit
}

func (s *attemptService) GetResultsView(ctx context.Context, attemptID uint, userID string) (*dto.ResultView, error) {
	attempt, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	content, err := loadAttemptContent(ctx, s.questionRepo, attempt)
	if err != nil {
		return nil, err
	}

	view := &dto.ResultView{
		ID:                   attempt.ID,
		Status:               string(attempt.Status),
		Level:                attempt.Level,
		StartedAt:            attempt.StartedAt,
		CompletedAt:          attempt.CompletedAt,
		MockExam:             mockExamSummary(attempt.MockExam),
		UseAttemptQuestionID: content.mode.UsesAttemptQuestionID(),
		TotalScore:           attempt.TotalScore,
		MaxPossibleScore:     attempt.MaxPossibleScore,
		Percentage:           attempt.Percentage,
		CefrLevelAchieved:    attempt.CefrLevelAchieved,
		CefrFeedback:         attempt.CefrFeedback,
	}
	if len(attempt.SectionScores) > 0 {
		if err := json.Unmarshal(attempt.SectionScores, &view.SectionScores); err != nil {
			log.Warn().Err(err).Uint("attemptID", attempt.ID).Msg("GetResultsView: unreadable section scores")
		}
	}

	answers := content.answersByKey(attempt.Answers)
	withAnswer := func(qv dto.QuestionView, key uint) dto.QuestionResultView {
		r := dto.QuestionResultView{QuestionView: qv}
		if a, ok := answers[key]; ok {
			r.AnswerText = a.AnswerText
			r.AnswerAudio = a.AudioURL
			r.IsCorrect = a.IsCorrect
			r.PointsEarned = a.PointsEarned
			r.Score = a.Score
			r.AIFeedback = a.AIFeedback
		}
		return r
	}
	if content.mode.UsesAttemptQuestionID() {
		for _, q := range content.attached {
			r := withAnswer(attachedQuestionView(q), q.ID)
			r.CorrectAnswer = rawJSON(q.CorrectAnswer)
			r.Transcript = q.Transcript
			view.Questions = append(view.Questions, r)
		}
	} else {
		for _, q := range content.bank {
			r := withAnswer(bankQuestionView(q), q.ID)
			r.CorrectAnswer = rawJSON(q.CorrectAnswer)
			view.Questions = append(view.Questions, r)
		}
	}
	return view, nil
}
