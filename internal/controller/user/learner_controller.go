package user

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/internal/controller"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/middleware"
	"github.com/lshigami/cefrexam/internal/service"
)

// LearnerController serves entitlement status, the metered AI practice tools and the
// learner profile.
type LearnerController struct {
	accessService   service.AccessService
	practiceService service.PracticeService
	profileService  service.ProfileService
	maxAudioBytes   int64
}

func NewLearnerController(as service.AccessService, ps service.PracticeService, prof service.ProfileService, maxAudioBytes int64) *LearnerController {
	return &LearnerController{
		accessService:   as,
		practiceService: ps,
		profileService:  prof,
		maxAudioBytes:   maxAudioBytes,
	}
}

// GetAccessStatus godoc
// @Summary Plan, usage and feature access of the caller
// @Tags Access
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.AccessStatusResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /access/status [get]
func (c *LearnerController) GetAccessStatus(ctx *gin.Context) {
	status, err := c.accessService.GetAccessStatus(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		controller.RespondError(ctx, err, "GetAccessStatus")
		return
	}
	ctx.JSON(http.StatusOK, status)
}

// PracticeWriting godoc
// @Summary Grade a standalone writing task
// @Tags Practice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.WritingPracticeRequest true "Task and response"
// @Success 200 {object} dto.PracticeGradeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.AccessDecisionResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /practice/writing [post]
func (c *LearnerController) PracticeWriting(ctx *gin.Context) {
	var req dto.WritingPracticeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	resp, err := c.practiceService.GradeWriting(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, err, "PracticeWriting")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// PracticeSpeaking godoc
// @Summary Transcribe and grade a standalone speaking task
// @Tags Practice
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param level formData string true "CEFR level"
// @Param prompt formData string true "Task prompt"
// @Param max_score formData number true "Maximum score"
// @Param audio formData file true "Recording"
// @Success 200 {object} dto.PracticeGradeResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.AccessDecisionResponse
// @Failure 413 {object} dto.ErrorResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /practice/speaking [post]
func (c *LearnerController) PracticeSpeaking(ctx *gin.Context) {
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxAudioBytes+multipartOverhead)
	if err := ctx.Request.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			ctx.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Message: service.ErrUploadTooLarge.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid multipart form", Details: []string{err.Error()}})
		return
	}

	in := service.SpeakingPracticeInput{Level: ctx.PostForm("level"), Prompt: ctx.PostForm("prompt")}
	maxScore, err := strconv.ParseFloat(ctx.PostForm("max_score"), 64)
	if err != nil || maxScore <= 0 || in.Prompt == "" || in.Level == "" {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "level, prompt and a positive max_score are required"})
		return
	}
	in.MaxScore = maxScore

	header, err := ctx.FormFile("audio")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "audio file is required"})
		return
	}
	upload, file, err := controller.AudioUploadFromForm(header)
	if err != nil {
		controller.RespondError(ctx, err, "PracticeSpeaking")
		return
	}
	defer file.Close()
	in.Audio = upload

	resp, err := c.practiceService.GradeSpeaking(ctx.Request.Context(), middleware.UserID(ctx), in)
	if err != nil {
		controller.RespondError(ctx, err, "PracticeSpeaking")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SendTutorMessage godoc
// @Summary Ask the AI tutor
// @Tags Practice
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.TutorMessageRequest true "Question for the tutor"
// @Success 200 {object} dto.TutorMessageResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.AccessDecisionResponse
// @Failure 503 {object} dto.ErrorResponse
// @Router /tutor/messages [post]
func (c *LearnerController) SendTutorMessage(ctx *gin.Context) {
	var req dto.TutorMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	resp, err := c.practiceService.AskTutor(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, err, "SendTutorMessage")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// GetProfile godoc
// @Summary Language preference and progress of the caller
// @Tags Profile
// @Produce json
// @Security BearerAuth
// @Success 200 {object} dto.ProfileResponse
// @Router /profile [get]
func (c *LearnerController) GetProfile(ctx *gin.Context) {
	profile, err := c.profileService.GetProfile(ctx.Request.Context(), middleware.UserID(ctx))
	if err != nil {
		controller.RespondError(ctx, err, "GetProfile")
		return
	}
	ctx.JSON(http.StatusOK, profile)
}

// SetLanguage godoc
// @Summary Set the language used for CEFR feedback
// @Tags Profile
// @Accept json
// @Security BearerAuth
// @Param body body dto.LanguagePreferenceRequest true "Language code"
// @Success 204
// @Failure 400 {object} dto.ErrorResponse
// @Router /profile/language [put]
func (c *LearnerController) SetLanguage(ctx *gin.Context) {
	var req dto.LanguagePreferenceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	if err := c.profileService.SetLanguage(ctx.Request.Context(), middleware.UserID(ctx), req.Language); err != nil {
		controller.RespondError(ctx, err, "SetLanguage")
		return
	}
	ctx.Status(http.StatusNoContent)
}
