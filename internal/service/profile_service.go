package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type ProfileService interface {
	GetProfile(ctx context.Context, userID string) (*dto.ProfileResponse, error)
	SetLanguage(ctx context.Context, userID, language string) error
}

type profileService struct {
	profileRepo  repository.ProfileRepository
	progressRepo repository.ProgressRepository
}

func NewProfileService(profileRepo repository.ProfileRepository, progressRepo repository.ProgressRepository) ProfileService {
	return &profileService{profileRepo: profileRepo, progressRepo: progressRepo}
}

func (s *profileService) GetProfile(ctx context.Context, userID string) (*dto.ProfileResponse, error) {
	language, err := s.profileRepo.LanguagePreference(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load language preference: %w", err)
	}
	if language == "" {
		language = defaultLanguageCode
	}
	resp := &dto.ProfileResponse{UserID: userID, Language: language}

	progress, err := s.progressRepo.FindByUser(ctx, userID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
	case err != nil:
		return nil, fmt.Errorf("failed to load progress: %w", err)
	default:
		resp.TotalExamsTaken = progress.TotalExamsTaken
		resp.CurrentCefrEstimate = progress.CurrentCefrEstimate
		lastActivity := progress.LastActivityAt
		resp.LastActivityAt = &lastActivity
	}
	return resp, nil
}

func (s *profileService) SetLanguage(ctx context.Context, userID, language string) error {
	language = strings.ToLower(strings.TrimSpace(language))
	if err := s.profileRepo.SetLanguagePreference(ctx, userID, language); err != nil {
		log.Error().Err(err).Str("userID", userID).Msg("Failed to save language preference")
		return fmt.Errorf("failed to save language preference: %w", err)
	}
	return nil
}
