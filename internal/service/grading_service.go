package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/events"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/lshigami/cefrexam/internal/storage"
	"github.com/rs/zerolog/log"
)

const (
	// BankSectionKey is the single bucket used for attempts graded from a mock exam bank.
	BankSectionKey = "section"

	aiFallbackFeedback  = "AI grading is temporarily unavailable; this task was scored 0."
	noResponseFeedback  = "No response was submitted for this task."
	noSpeechFeedback    = "No speech could be transcribed from your recording, so this task was scored 0."
	defaultLanguageCode = "en"
)

// GradingService scores a submitted attempt. Submitting a completed attempt returns its
// stored summary and writes nothing.
type GradingService interface {
	Submit(ctx context.Context, attemptID uint, userID string, req dto.SubmitAttemptRequest) (*dto.ScoreSummary, error)
}

type gradingService struct {
	attemptRepo  repository.AttemptRepository
	answerRepo   repository.AnswerRepository
	questionRepo repository.QuestionRepository
	progressRepo repository.ProgressRepository
	profileRepo  repository.ProfileRepository
	writing      WritingGrader
	speaking     SpeakingGrader
	transcriber  Transcriber
	checker      AnswerChecker
	evaluator    CefrEvaluator
	audio        storage.AudioStorage
	publisher    events.Publisher
	now          func() time.Time
}

type GradingDeps struct {
	AttemptRepo  repository.AttemptRepository
	AnswerRepo   repository.AnswerRepository
	QuestionRepo repository.QuestionRepository
	ProgressRepo repository.ProgressRepository
	ProfileRepo  repository.ProfileRepository
	Writing      WritingGrader
	Speaking     SpeakingGrader
	Transcriber  Transcriber
	Checker      AnswerChecker
	Evaluator    CefrEvaluator
	Audio        storage.AudioStorage
	Publisher    events.Publisher
}

func NewGradingService(deps GradingDeps) GradingService {
	return &gradingService{
		attemptRepo:  deps.AttemptRepo,
		answerRepo:   deps.AnswerRepo,
		questionRepo: deps.QuestionRepo,
		progressRepo: deps.ProgressRepo,
		profileRepo:  deps.ProfileRepo,
		writing:      deps.Writing,
		speaking:     deps.Speaking,
		transcriber:  deps.Transcriber,
		checker:      deps.Checker,
		evaluator:    deps.Evaluator,
		audio:        deps.Audio,
		publisher:    deps.Publisher,
		now:          time.Now,
	}
}

// sectionTally accumulates per-section scores in first-seen order.
type sectionTally struct {
	order  []string
	scores map[string]*model.SectionScore
}

func newSectionTally() *sectionTally {
	return &sectionTally{scores: make(map[string]*model.SectionScore)}
}

func (t *sectionTally) add(section string, score, max float64) {
	entry, ok := t.scores[section]
	if !ok {
		entry = &model.SectionScore{}
		t.scores[section] = entry
		t.order = append(t.order, section)
	}
	entry.Score += score
	entry.Max += max
}

func (t *sectionTally) totals() (total, max float64) {
	for _, name := range t.order {
		total += t.scores[name].Score
		max += t.scores[name].Max
	}
	return total, max
}

func (t *sectionTally) asMap() map[string]model.SectionScore {
	out := make(map[string]model.SectionScore, len(t.scores))
	for name, entry := range t.scores {
		out[name] = *entry
	}
	return out
}

func (s *gradingService) Submit(ctx context.Context, attemptID uint, userID string, req dto.SubmitAttemptRequest) (*dto.ScoreSummary, error) {
	attempt, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.IsCompleted() {
		log.Info().Uint("attemptID", attempt.ID).Msg("Submit: attempt already completed, returning stored summary")
		return summaryFromAttempt(attempt), nil
	}

	content, err := loadAttemptContent(ctx, s.questionRepo, attempt)
	if err != nil {
		return nil, err
	}
	if err := s.ingest(ctx, attempt.ID, content, req); err != nil {
		return nil, err
	}

	// Grade against a fresh read so answers from this request are visible.
	attempt, err = findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
	if err != nil {
		return nil, err
	}
	if attempt.IsCompleted() {
		return summaryFromAttempt(attempt), nil
	}
	answers := content.answersByKey(attempt.Answers)

	tally := newSectionTally()
	if content.mode.UsesAttemptQuestionID() {
		level := attemptLevel(attempt)
		for _, q := range content.attached {
			if err := s.gradeAttached(ctx, attempt.ID, level, q, content, answers, tally); err != nil {
				return nil, err
			}
		}
	} else {
		for _, q := range content.bank {
			if err := s.gradeBank(ctx, attempt.ID, q, content, answers, tally); err != nil {
				return nil, err
			}
		}
	}

	total, max := tally.totals()
	percentage := 0.0
	if max > 0 {
		percentage = round2(total / max * 100)
	}

	language, err := s.profileRepo.LanguagePreference(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Submit: language preference unavailable")
	}
	if language == "" {
		language = defaultLanguageCode
	}
	evaluation, err := s.evaluator.EvaluateCefrLevel(ctx, total, max, percentage, language)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate CEFR level: %w", err)
	}

	sectionJSON, err := json.Marshal(tally.asMap())
	if err != nil {
		return nil, fmt.Errorf("failed to encode section scores: %w", err)
	}
	completedAt := s.now()
	attempt.Status = model.AttemptStatusCompleted
	attempt.CompletedAt = &completedAt
	attempt.TotalScore = &total
	attempt.MaxPossibleScore = &max
	attempt.Percentage = &percentage
	attempt.CefrLevelAchieved = &evaluation.Level
	attempt.CefrFeedback = &evaluation.Feedback
	attempt.SectionScores = sectionJSON

	won, err := s.attemptRepo.Complete(ctx, attempt)
	if err != nil {
		log.Error().Err(err).Uint("attemptID", attempt.ID).Msg("Submit: failed to complete attempt")
		return nil, fmt.Errorf("failed to save attempt results: %w", err)
	}
	if !won {
		// A concurrent submit finished first; its stored results stand.
		log.Warn().Uint("attemptID", attempt.ID).Msg("Submit: lost completion race")
		stored, err := findOwnedAttempt(ctx, s.attemptRepo, attemptID, userID)
		if err != nil {
			return nil, err
		}
		return summaryFromAttempt(stored), nil
	}

	if err := s.progressRepo.RecordCompletion(ctx, userID, evaluation.Level, completedAt); err != nil {
		log.Error().Err(err).Uint("attemptID", attempt.ID).Str("userID", userID).Msg("Submit: progress update failed after completion")
		return nil, fmt.Errorf("failed to update progress: %w", err)
	}

	s.publishCompleted(ctx, attempt)
	log.Info().
		Uint("attemptID", attempt.ID).
		Float64("totalScore", total).
		Float64("maxPossibleScore", max).
		Float64("percentage", percentage).
		Str("cefr", evaluation.Level).
		Msg("Attempt graded")
	return summaryFromAttempt(attempt), nil
}

// ingest upserts every submitted entry. Entries that do not address a question of this
// attempt are skipped.
func (s *gradingService) ingest(ctx context.Context, attemptID uint, content *attemptContent, req dto.SubmitAttemptRequest) error {
	attached := content.mode.UsesAttemptQuestionID()

	for _, entry := range req.Answers {
		id := entry.QuestionID
		if attached {
			id = entry.AttemptQuestionID
		}
		if id == nil || !content.contains(*id) {
			log.Warn().Uint("attemptID", attemptID).Interface("entry", entry).Msg("Submit: answer does not address a question of this attempt, skipping")
			continue
		}
		answer := content.newAnswer(attemptID, *id)
		answer.AnswerText = entry.AnswerText
		if err := s.answerRepo.Upsert(ctx, &answer, "answer_text"); err != nil {
			return fmt.Errorf("failed to save answer for question %d: %w", *id, err)
		}
	}

	if !attached && (len(req.Writing) > 0 || len(req.Speaking) > 0) {
		log.Warn().Uint("attemptID", attemptID).Msg("Submit: writing/speaking entries ignored for a bank-backed attempt")
		return nil
	}

	for _, entry := range req.Writing {
		if !content.contains(entry.TaskID) {
			log.Warn().Uint("attemptID", attemptID).Uint("taskID", entry.TaskID).Msg("Submit: unknown writing task, skipping")
			continue
		}
		answer := content.newAnswer(attemptID, entry.TaskID)
		answer.AnswerText = entry.Text
		if err := s.answerRepo.Upsert(ctx, &answer, "answer_text"); err != nil {
			return fmt.Errorf("failed to save writing for task %d: %w", entry.TaskID, err)
		}
	}

	for _, entry := range req.Speaking {
		if !content.contains(entry.TaskID) {
			log.Warn().Uint("attemptID", attemptID).Uint("taskID", entry.TaskID).Msg("Submit: unknown speaking task, skipping")
			continue
		}
		hasAudio := entry.AudioURL != nil && *entry.AudioURL != ""
		text := entry.Text
		if strings.TrimSpace(text) == "" {
			if !hasAudio {
				continue
			}
			text = model.AudioSubmittedSentinel
		}
		answer := content.newAnswer(attemptID, entry.TaskID)
		answer.AnswerText = text
		columns := []string{"answer_text"}
		if hasAudio {
			answer.AudioURL = entry.AudioURL
			columns = append(columns, "audio_url")
		}
		if err := s.answerRepo.Upsert(ctx, &answer, columns...); err != nil {
			return fmt.Errorf("failed to save speaking for task %d: %w", entry.TaskID, err)
		}
	}
	return nil
}

func (s *gradingService) gradeAttached(ctx context.Context, attemptID uint, level string, q model.AttemptQuestion, content *attemptContent, answers map[uint]model.Answer, tally *sectionTally) error {
	maxScore := q.EffectiveMaxScore()
	answer, ok := answers[q.ID]
	if !ok {
		answer = content.newAnswer(attemptID, q.ID)
	}
	task := RubricTask{Prompt: q.QuestionText, Rubric: rawJSON(q.Rubric), MaxScore: maxScore}

	var earned float64
	columns := []string{"is_correct", "points_earned", "score", "ai_feedback"}

	switch q.Section {
	case model.SectionWriting:
		result := s.gradeRubric(ctx, q, answer.AnswerText, func() (GradeResult, error) {
			return s.writing.GradeWriting(ctx, level, task, answer.AnswerText)
		}, noResponseFeedback)
		earned = s.applyRubricResult(&answer, result, maxScore)

	case model.SectionSpeaking:
		transcript := s.speakingTranscript(ctx, q, &answer)
		if transcript != "" {
			answer.AnswerText = transcript
			columns = append(columns, "answer_text")
		}
		emptyFeedback := noResponseFeedback
		if answer.AudioURL != nil {
			emptyFeedback = noSpeechFeedback
		}
		result := s.gradeRubric(ctx, q, transcript, func() (GradeResult, error) {
			return s.speaking.GradeSpeaking(ctx, level, task, transcript)
		}, emptyFeedback)
		earned = s.applyRubricResult(&answer, result, maxScore)

	default:
		correct := s.checker.IsAnswerCorrect(answer.AnswerText, q.CorrectAnswer)
		if correct {
			earned = math.Min(float64(q.Points), maxScore)
		}
		answer.IsCorrect = &correct
		answer.PointsEarned = &earned
		answer.Score = nil
		answer.AIFeedback = nil
	}

	tally.add(string(q.Section), earned, maxScore)
	if err := s.answerRepo.Upsert(ctx, &answer, columns...); err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Uint("attemptQuestionID", q.ID).Msg("Submit: failed to persist graded answer")
		return fmt.Errorf("failed to persist grade for question %d: %w", q.ID, err)
	}
	return nil
}

// gradeRubric runs an AI grader, substituting a zero score on empty input or upstream failure.
func (s *gradingService) gradeRubric(ctx context.Context, q model.AttemptQuestion, text string, grade func() (GradeResult, error), emptyFeedback string) GradeResult {
	if strings.TrimSpace(text) == "" || text == model.AudioSubmittedSentinel {
		return GradeResult{Score: 0, Feedback: emptyFeedback}
	}
	result, err := grade()
	if err == nil && !isFiniteScore(result.Score) {
		err = fmt.Errorf("grader returned non-finite score %v", result.Score)
	}
	if err != nil {
		log.Warn().Err(err).Uint("attemptQuestionID", q.ID).Str("section", string(q.Section)).Msg("Submit: AI grading failed, scoring 0")
		return GradeResult{Score: 0, Feedback: aiFallbackFeedback}
	}
	return result
}

func (s *gradingService) applyRubricResult(answer *model.Answer, result GradeResult, maxScore float64) float64 {
	score := clampScore(result.Score, maxScore)
	rounded := math.Round(score)
	feedback := result.Feedback
	answer.IsCorrect = nil
	answer.Score = &score
	answer.PointsEarned = &rounded
	answer.AIFeedback = &feedback
	return score
}

// speakingTranscript returns the text to grade. Audio-only answers are transcribed; a failed
// transcription leaves whatever text was stored, minus the audio sentinel.
func (s *gradingService) speakingTranscript(ctx context.Context, q model.AttemptQuestion, answer *model.Answer) string {
	stored := answer.AnswerText
	needsTranscript := strings.TrimSpace(stored) == "" || stored == model.AudioSubmittedSentinel
	if !needsTranscript {
		return stored
	}
	if answer.AudioURL == nil || *answer.AudioURL == "" {
		return ""
	}

	path, err := s.audio.LocalPath(*answer.AudioURL)
	if err != nil {
		log.Warn().Err(err).Uint("attemptQuestionID", q.ID).Msg("Submit: speaking audio is not stored locally")
		return ""
	}
	transcript, err := s.transcriber.TranscribeAudio(ctx, path)
	if err != nil {
		log.Warn().Err(err).Uint("attemptQuestionID", q.ID).Msg("Submit: transcription failed, grading stored text")
		return ""
	}
	return strings.TrimSpace(transcript)
}

func (s *gradingService) gradeBank(ctx context.Context, attemptID uint, q model.Question, content *attemptContent, answers map[uint]model.Answer, tally *sectionTally) error {
	answer, ok := answers[q.ID]
	if !ok {
		answer = content.newAnswer(attemptID, q.ID)
	}
	maxScore := float64(q.Points)
	correct := s.checker.IsAnswerCorrect(answer.AnswerText, q.CorrectAnswer)
	earned := 0.0
	if correct {
		earned = maxScore
	}
	answer.IsCorrect = &correct
	answer.PointsEarned = &earned

	tally.add(BankSectionKey, earned, maxScore)
	if err := s.answerRepo.Upsert(ctx, &answer, "is_correct", "points_earned"); err != nil {
		log.Error().Err(err).Uint("attemptID", attemptID).Uint("questionID", q.ID).Msg("Submit: failed to persist graded answer")
		return fmt.Errorf("failed to persist grade for question %d: %w", q.ID, err)
	}
	return nil
}

func (s *gradingService) publishCompleted(ctx context.Context, attempt *model.Attempt) {
	if s.publisher == nil {
		return
	}
	event := events.AttemptCompletedEvent{
		AttemptID:        attempt.ID,
		UserID:           attempt.UserID,
		MockExamID:       attempt.MockExamID,
		TotalScore:       derefFloat(attempt.TotalScore),
		MaxPossibleScore: derefFloat(attempt.MaxPossibleScore),
		Percentage:       derefFloat(attempt.Percentage),
		CefrLevel:        derefString(attempt.CefrLevelAchieved),
	}
	if attempt.CompletedAt != nil {
		event.CompletedAt = attempt.CompletedAt.UTC()
	}
	if err := s.publisher.PublishAttemptCompleted(ctx, event); err != nil {
		log.Warn().Err(err).Uint("attemptID", attempt.ID).Msg("Submit: failed to publish completion event")
	}
}

func attemptLevel(attempt *model.Attempt) string {
	if attempt.Level != nil && *attempt.Level != "" {
		return *attempt.Level
	}
	if attempt.MockExam != nil {
		return attempt.MockExam.Level
	}
	return ""
}

func summaryFromAttempt(attempt *model.Attempt) *dto.ScoreSummary {
	return &dto.ScoreSummary{
		AttemptID:         attempt.ID,
		TotalScore:        derefFloat(attempt.TotalScore),
		MaxPossibleScore:  derefFloat(attempt.MaxPossibleScore),
		Percentage:        derefFloat(attempt.Percentage),
		CefrLevelAchieved: derefString(attempt.CefrLevelAchieved),
		CefrFeedback:      derefString(attempt.CefrFeedback),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func derefFloat(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
