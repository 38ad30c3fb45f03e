package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/config"
	adminctrl "github.com/lshigami/cefrexam/internal/controller/admin"
	userctrl "github.com/lshigami/cefrexam/internal/controller/user"
	"github.com/lshigami/cefrexam/internal/middleware"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const APIPrefix = "/api/v1"

func NewGinEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// URL: http://localhost:PORT/swagger/index.html
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.Static(cfg.Upload.URLPrefix, cfg.Upload.Dir)
	return r
}

// RegisterRoutes mounts every API route behind the authenticator.
func RegisterRoutes(
	r *gin.Engine,
	auth *middleware.Authenticator,
	attemptCtrl *userctrl.AttemptController,
	learnerCtrl *userctrl.LearnerController,
	adminCtrl *adminctrl.AdminController,
) {
	api := r.Group(APIPrefix, auth.RequireUser())
	{
		api.GET("/mock-exams", attemptCtrl.ListMockExams)
		api.GET("/mock-exams/:id", attemptCtrl.GetMockExam)

		attempts := api.Group("/attempts")
		attempts.POST("", attemptCtrl.StartAttempt)
		attempts.GET("", attemptCtrl.ListAttempts)
		attempts.GET("/:id", attemptCtrl.GetAttempt)
		attempts.PUT("/:id/answer", attemptCtrl.SaveAnswer)
		attempts.POST("/:id/speaking-audio", attemptCtrl.UploadSpeakingAudio)
		attempts.POST("/:id/submit", attemptCtrl.SubmitAttempt)
		attempts.GET("/:id/results", attemptCtrl.GetResults)
		attempts.GET("/:id/results/export", attemptCtrl.ExportResults)

		api.GET("/access/status", learnerCtrl.GetAccessStatus)
		api.POST("/practice/writing", learnerCtrl.PracticeWriting)
		api.POST("/practice/speaking", learnerCtrl.PracticeSpeaking)
		api.POST("/tutor/messages", learnerCtrl.SendTutorMessage)
		api.GET("/profile", learnerCtrl.GetProfile)
		api.PUT("/profile/language", learnerCtrl.SetLanguage)
	}

	admin := api.Group("/admin", auth.RequireAdmin())
	{
		admin.POST("/mock-exams", adminCtrl.CreateMockExam)
		admin.GET("/mock-exams", adminCtrl.ListMockExams)
		admin.POST("/subscriptions", adminCtrl.GrantSubscription)
		admin.POST("/purchases", adminCtrl.GrantPurchase)
	}
}
