package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/lshigami/cefrexam/internal/storage"
	"github.com/rs/zerolog/log"
)

// SpeakingPracticeInput is a standalone speaking task graded outside any attempt.
type SpeakingPracticeInput struct {
	Level    string
	Prompt   string
	MaxScore float64
	Audio    storage.AudioUpload
}

// PracticeService runs the metered AI features. Each call checks the entitlement first
// and records usage only after the AI call succeeded.
type PracticeService interface {
	GradeWriting(ctx context.Context, userID string, req dto.WritingPracticeRequest) (*dto.PracticeGradeResponse, error)
	GradeSpeaking(ctx context.Context, userID string, in SpeakingPracticeInput) (*dto.PracticeGradeResponse, error)
	AskTutor(ctx context.Context, userID string, req dto.TutorMessageRequest) (*dto.TutorMessageResponse, error)
}

type practiceService struct {
	access      AccessService
	writing     WritingGrader
	speaking    SpeakingGrader
	transcriber Transcriber
	generator   TextGenerator
	profileRepo repository.ProfileRepository
	audio       storage.AudioStorage
}

func NewPracticeService(
	access AccessService,
	llm GeminiLLMService,
	profileRepo repository.ProfileRepository,
	audio storage.AudioStorage,
) PracticeService {
	return &practiceService{
		access:      access,
		writing:     llm,
		speaking:    llm,
		transcriber: llm,
		generator:   llm,
		profileRepo: profileRepo,
		audio:       audio,
	}
}

func (s *practiceService) GradeWriting(ctx context.Context, userID string, req dto.WritingPracticeRequest) (*dto.PracticeGradeResponse, error) {
	if err := s.access.CanUseWritingAI(ctx, userID).Err(); err != nil {
		return nil, err
	}

	task := RubricTask{Prompt: req.Prompt, MaxScore: req.MaxScore}
	result, err := s.writing.GradeWriting(ctx, req.Level, task, req.Text)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GradeWriting: AI grading failed")
		return nil, aiFailure(err)
	}

	if err := s.access.RecordWritingAIUsage(ctx, userID); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GradeWriting: failed to record usage")
	}
	return &dto.PracticeGradeResponse{
		Score:    clampScore(result.Score, req.MaxScore),
		MaxScore: req.MaxScore,
		Feedback: result.Feedback,
	}, nil
}

func (s *practiceService) GradeSpeaking(ctx context.Context, userID string, in SpeakingPracticeInput) (*dto.PracticeGradeResponse, error) {
	if err := s.access.CanUseSpeakingAI(ctx, userID).Err(); err != nil {
		return nil, err
	}
	if err := s.audio.Validate(in.Audio); err != nil {
		return nil, uploadError(err)
	}

	path, cleanup, err := s.audio.SaveTemp(in.Audio)
	if err != nil {
		return nil, uploadError(err)
	}
	defer cleanup()

	transcript, err := s.transcriber.TranscribeAudio(ctx, path)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GradeSpeaking: transcription failed")
		return nil, aiFailure(err)
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return &dto.PracticeGradeResponse{MaxScore: in.MaxScore, Feedback: noSpeechFeedback}, nil
	}

	task := RubricTask{Prompt: in.Prompt, MaxScore: in.MaxScore}
	result, err := s.speaking.GradeSpeaking(ctx, in.Level, task, transcript)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GradeSpeaking: AI grading failed")
		return nil, aiFailure(err)
	}

	if err := s.access.RecordSpeakingAIUsage(ctx, userID); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("GradeSpeaking: failed to record usage")
	}
	return &dto.PracticeGradeResponse{
		Score:      clampScore(result.Score, in.MaxScore),
		MaxScore:   in.MaxScore,
		Feedback:   result.Feedback,
		Transcript: transcript,
	}, nil
}

func (s *practiceService) AskTutor(ctx context.Context, userID string, req dto.TutorMessageRequest) (*dto.TutorMessageResponse, error) {
	if err := s.access.CanUseAITutor(ctx, userID).Err(); err != nil {
		return nil, err
	}

	language, err := s.profileRepo.LanguagePreference(ctx, userID)
	if err != nil || language == "" {
		language = defaultLanguageCode
	}
	prompt := fmt.Sprintf(`You are a friendly English tutor helping a learner prepare for a CEFR exam.
Explain grammar and vocabulary clearly and give short examples. When you explain, use the language with code "%s"; keep English examples in English.

Learner message:
%s`, language, req.Message)

	reply, err := s.generator.GenerateText(ctx, prompt)
	if err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("AskTutor: AI reply failed")
		return nil, aiFailure(err)
	}

	if err := s.access.RecordAITutorUsage(ctx, userID); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("AskTutor: failed to record usage")
	}
	return &dto.TutorMessageResponse{Reply: strings.TrimSpace(reply)}, nil
}

func aiFailure(err error) error {
	if errors.Is(err, ErrAIUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrAIUnavailable, err)
}
