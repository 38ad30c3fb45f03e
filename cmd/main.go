package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/config"
	"github.com/lshigami/cefrexam/database"
	_ "github.com/lshigami/cefrexam/docs"
	"github.com/lshigami/cefrexam/internal/cache"
	adminctrl "github.com/lshigami/cefrexam/internal/controller/admin"
	userctrl "github.com/lshigami/cefrexam/internal/controller/user"
	"github.com/lshigami/cefrexam/internal/events"
	"github.com/lshigami/cefrexam/internal/logger"
	"github.com/lshigami/cefrexam/internal/middleware"
	"github.com/lshigami/cefrexam/internal/model"
	"github.com/lshigami/cefrexam/internal/repository"
	"github.com/lshigami/cefrexam/internal/router"
	"github.com/lshigami/cefrexam/internal/service"
	"github.com/lshigami/cefrexam/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// @title CEFR Exam Platform API
// @version 1.0
// @description Mock exams with AI-graded writing and speaking, CEFR placement and plan-based access.
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), true)

	app := fx.New(
		// Core Application Components
		fx.Provide(
			config.NewConfig,
			database.NewDatabase,
			router.NewGinEngine,
			NewRedisClient,
			NewStatusCache,
			NewEventPublisher,
			NewGeminiLLMService,
			storage.NewAudioStorage,
			middleware.NewTokenVerifier,
			middleware.NewAuthenticatorFromConfig,
		),

		// Repositories Layer
		fx.Provide(
			repository.NewMockExamRepository,
			repository.NewQuestionRepository,
			repository.NewAttemptRepository,
			repository.NewAnswerRepository,
			repository.NewSubscriptionRepository,
			repository.NewPurchaseRepository,
			repository.NewUsageRepository,
			repository.NewProgressRepository,
			repository.NewProfileRepository,
		),

		// Services Layer
		fx.Provide(
			service.NewUsagePeriodResolver,
			service.NewAccessService,
			service.NewAnswerChecker,
			func(llm service.GeminiLLMService) service.CefrEvaluator {
				return service.NewCefrEvaluator(llm)
			},
			service.NewCatalogService,
			service.NewAttemptService,
			NewGradingService,
			service.NewResultExporter,
			service.NewPracticeService,
			service.NewProfileService,
			service.NewAdminService,
		),

		// API Controllers Layer
		fx.Provide(
			func(cs service.CatalogService, as service.AttemptService, gs service.GradingService, ex service.ResultExporter, cfg *config.Config) *userctrl.AttemptController {
				return userctrl.NewAttemptController(cs, as, gs, ex, cfg.Upload.MaxBytes)
			},
			func(as service.AccessService, ps service.PracticeService, prof service.ProfileService, cfg *config.Config) *userctrl.LearnerController {
				return userctrl.NewLearnerController(as, ps, prof, cfg.Upload.MaxBytes)
			},
			adminctrl.NewAdminController,
		),

		fx.Invoke(ConfigureLogger),
		fx.Invoke(AutoMigrateDB),
		fx.Invoke(RegisterRoutesAndStartServer),
	)

	if err := app.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start application")
	}

	<-app.Done()
	log.Info().Msg("Application shutting down gracefully...")
	stopCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("Application stopped with errors")
	}
}

func ConfigureLogger(cfg *config.Config) {
	logger.Init(cfg.LogLevel, cfg.Server.Mode != gin.ReleaseMode)
}

func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) *redis.Client {
	client := cache.NewRedisClient(cfg)
	if client == nil {
		return nil
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis is unreachable, access status will be computed on every request")
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func NewStatusCache(client *redis.Client) cache.Cache {
	return cache.NewRedisCache(client, "access:")
}

func NewEventPublisher(lc fx.Lifecycle, cfg *config.Config) (events.Publisher, error) {
	transport, err := events.NewMessagePublisher(cfg)
	if err != nil {
		return nil, err
	}
	publisher := events.NewPublisher(transport, cfg.Events.Topic)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return publisher.Close()
		},
	})
	return publisher, nil
}

func NewGeminiLLMService(lc fx.Lifecycle, cfg *config.Config) (service.GeminiLLMService, error) {
	llm, err := service.NewGeminiLLMService(cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return llm.Close()
		},
	})
	return llm, nil
}

func NewGradingService(
	attemptRepo repository.AttemptRepository,
	answerRepo repository.AnswerRepository,
	questionRepo repository.QuestionRepository,
	progressRepo repository.ProgressRepository,
	profileRepo repository.ProfileRepository,
	llm service.GeminiLLMService,
	checker service.AnswerChecker,
	evaluator service.CefrEvaluator,
	audio storage.AudioStorage,
	publisher events.Publisher,
) service.GradingService {
	return service.NewGradingService(service.GradingDeps{
		AttemptRepo:  attemptRepo,
		AnswerRepo:   answerRepo,
		QuestionRepo: questionRepo,
		ProgressRepo: progressRepo,
		ProfileRepo:  profileRepo,
		Writing:      llm,
		Speaking:     llm,
		Transcriber:  llm,
		Checker:      checker,
		Evaluator:    evaluator,
		Audio:        audio,
		Publisher:    publisher,
	})
}

// RegisterRoutesAndStartServer configures API routes and manages server lifecycle.
func RegisterRoutesAndStartServer(
	lc fx.Lifecycle,
	r *gin.Engine,
	cfg *config.Config,
	auth *middleware.Authenticator,
	attemptCtrl *userctrl.AttemptController,
	learnerCtrl *userctrl.LearnerController,
	adminCtrl *adminctrl.AdminController,
) {
	router.RegisterRoutes(r, auth, attemptCtrl, learnerCtrl, adminCtrl)

	server := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Msgf("CEFR exam API server starting on port %s", cfg.Server.Port)
			log.Info().Msgf("Swagger UI available at http://localhost:%s/swagger/index.html", cfg.Server.Port)
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("Server ListenAndServe failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Server shutting down...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	})
}

func AutoMigrateDB(db *gorm.DB) error {
	log.Info().Msg("Running database migrations...")
	err := db.AutoMigrate(
		&model.MockExam{},
		&model.Question{},
		&model.Attempt{},
		&model.AttemptQuestion{},
		&model.Answer{},
		&model.Subscription{},
		&model.Purchase{},
		&model.UsageTracking{},
		&model.UserProgress{},
		&model.UserProfile{},
	)
	if err != nil {
		log.Error().Err(err).Msg("Database migration failed")
		return err
	}
	log.Info().Msg("Database migration completed successfully.")
	return nil
}
