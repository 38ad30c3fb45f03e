package repository

import (
	"context"
	"errors"

	"github.com/lshigami/cefrexam/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProfileRepository interface {
	// LanguagePreference returns "" when the user never set one.
	LanguagePreference(ctx context.Context, userID string) (string, error)
	SetLanguagePreference(ctx context.Context, userID, language string) error
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) LanguagePreference(ctx context.Context, userID string) (string, error) {
	var profile model.UserProfile
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return profile.LanguagePreference, nil
}

func (r *profileRepository) SetLanguagePreference(ctx context.Context, userID, language string) error {
	profile := model.UserProfile{UserID: userID, LanguagePreference: language}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"language_preference", "updated_at"}),
	}).Create(&profile).Error
}
