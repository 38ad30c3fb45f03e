package user

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/internal/controller"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/middleware"
	"github.com/lshigami/cefrexam/internal/service"
	"github.com/rs/zerolog/log"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	// multipartOverhead is the slack allowed on top of the audio cap for form fields and boundaries.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

type AttemptController struct {
	catalogService service.CatalogService
	attemptService service.AttemptService
	gradingService service.GradingService
	exporter       service.ResultExporter
	maxAudioBytes  int64
}

func NewAttemptController(
	cs service.CatalogService,
	as service.AttemptService,
	gs service.GradingService,
	exporter service.ResultExporter,
	maxAudioBytes int64,
) *AttemptController {
	return &AttemptController{
		catalogService: cs,
		attemptService: as,
		gradingService: gs,
		exporter:       exporter,
		maxAudioBytes:  maxAudioBytes,
	}
}

// ListMockExams godoc
// @Summary List mock exams
// @Tags Mock Exams
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.MockExamCatalogItem
// @Failure 500 {object} dto.ErrorResponse
// @Router /mock-exams [get]
func (c *AttemptController) ListMockExams(ctx *gin.Context) {
	exams, err := c.catalogService.ListMockExams(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, err, "ListMockExams")
		return
	}
	ctx.JSON(http.StatusOK, exams)
}

// GetMockExam godoc
// @Summary Describe a mock exam before starting it
// @Tags Mock Exams
// @Produce json
// @Security BearerAuth
// @Param id path int true "Mock exam ID"
// @Success 200 {object} dto.MockExamDetail
// @Failure 404 {object} dto.ErrorResponse
// @Router /mock-exams/{id} [get]
func (c *AttemptController) GetMockExam(ctx *gin.Context) {
	id, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	detail, err := c.catalogService.GetMockExam(ctx.Request.Context(), id)
	if err != nil {
		controller.RespondError(ctx, err, "GetMockExam")
		return
	}
	ctx.JSON(http.StatusOK, detail)
}

// StartAttempt godoc
// @Summary Start a mock exam attempt
// @Description Snapshots the exam's questions into a new attempt. Consumes one mock exam use.
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body dto.StartAttemptRequest true "Mock exam to start"
// @Success 201 {object} dto.AttemptView
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.AccessDecisionResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	var req dto.StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	view, err := c.attemptService.StartAttempt(ctx.Request.Context(), middleware.UserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, err, "StartAttempt")
		return
	}
	ctx.JSON(http.StatusCreated, view)
}

// ListAttempts godoc
// @Summary List my attempts, newest first
// @Tags Attempts
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Page size (max 50)"
// @Param cursor query int false "Last attempt id of the previous page"
// @Success 200 {object} dto.AttemptListResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /attempts [get]
func (c *AttemptController) ListAttempts(ctx *gin.Context) {
	limit, cursor := 0, uint64(0)
	if raw := ctx.Query("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid limit format"})
			return
		}
		limit = v
	}
	if raw := ctx.Query("cursor"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid cursor format"})
			return
		}
		cursor = v
	}

	page, err := c.attemptService.ListAttempts(ctx.Request.Context(), middleware.UserID(ctx), uint(cursor), limit)
	if err != nil {
		controller.RespondError(ctx, err, "ListAttempts")
		return
	}
	ctx.JSON(http.StatusOK, page)
}

// GetAttempt godoc
// @Summary Get an attempt for answering
// @Description Questions without answer keys plus the answers saved so far.
// @Tags Attempts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Success 200 {object} dto.AttemptView
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts/{id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	view, err := c.attemptService.GetAttemptView(ctx.Request.Context(), attemptID, middleware.UserID(ctx))
	if err != nil {
		controller.RespondError(ctx, err, "GetAttempt")
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// SaveAnswer godoc
// @Summary Save one answer
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Param body body dto.SaveAnswerRequest true "question_id or attempt_question_id plus answer_text"
// @Success 200 {object} dto.SaveAnswerResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts/{id}/answer [put]
func (c *AttemptController) SaveAnswer(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	var req dto.SaveAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	resp, err := c.attemptService.SaveAnswer(ctx.Request.Context(), attemptID, middleware.UserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, err, "SaveAnswer")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// UploadSpeakingAudio godoc
// @Summary Upload a speaking answer recording
// @Tags Attempts
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Param attempt_question_id formData int true "Speaking question of this attempt"
// @Param audio formData file true "Recording (webm, mp3, m4a, wav, ogg), at most 10MB"
// @Success 200 {object} dto.SpeakingAudioResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 413 {object} dto.ErrorResponse
// @Router /attempts/{id}/speaking-audio [post]
func (c *AttemptController) UploadSpeakingAudio(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, c.maxAudioBytes+multipartOverhead)
	if err := ctx.Request.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			ctx.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Message: service.ErrUploadTooLarge.Error()})
			return
		}
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid multipart form", Details: []string{err.Error()}})
		return
	}

	aqID, err := strconv.ParseUint(ctx.PostForm("attempt_question_id"), 10, 32)
	if err != nil || aqID == 0 {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "attempt_question_id is required"})
		return
	}
	header, err := ctx.FormFile("audio")
	if err != nil {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "audio file is required"})
		return
	}
	upload, file, err := controller.AudioUploadFromForm(header)
	if err != nil {
		controller.RespondError(ctx, err, "UploadSpeakingAudio")
		return
	}
	defer file.Close()

	resp, err := c.attemptService.SaveSpeakingAudio(ctx.Request.Context(), attemptID, middleware.UserID(ctx), uint(aqID), upload)
	if err != nil {
		controller.RespondError(ctx, err, "UploadSpeakingAudio")
		return
	}
	ctx.JSON(http.StatusOK, resp)
}

// SubmitAttempt godoc
// @Summary Submit an attempt for grading
// @Description Ingests the final answers, grades every question and completes the attempt. Submitting a completed attempt returns its stored scores.
// @Tags Attempts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Param body body dto.SubmitAttemptRequest false "Final answers"
// @Success 200 {object} dto.ScoreSummary
// @Failure 404 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /attempts/{id}/submit [post]
func (c *AttemptController) SubmitAttempt(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}

	// A body that does not parse grades whatever is already stored.
	var req dto.SubmitAttemptRequest
	body, err := io.ReadAll(ctx.Request.Body)
	if err == nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			log.Warn().Err(err).Uint("attemptID", attemptID).Msg("SubmitAttempt: ignoring malformed body")
			req = dto.SubmitAttemptRequest{}
		}
	}

	summary, err := c.gradingService.Submit(ctx.Request.Context(), attemptID, middleware.UserID(ctx), req)
	if err != nil {
		controller.RespondError(ctx, err, "SubmitAttempt")
		return
	}
	ctx.JSON(http.StatusOK, summary)
}

// GetResults godoc
// @Summary Get graded results of an attempt
// @Tags Attempts
// @Produce json
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Success 200 {object} dto.ResultView
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts/{id}/results [get]
func (c *AttemptController) GetResults(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	view, err := c.attemptService.GetResultsView(ctx.Request.Context(), attemptID, middleware.UserID(ctx))
	if err != nil {
		controller.RespondError(ctx, err, "GetResults")
		return
	}
	ctx.JSON(http.StatusOK, view)
}

// ExportResults godoc
// @Summary Download results as an Excel workbook
// @Tags Attempts
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security BearerAuth
// @Param id path int true "Attempt ID"
// @Success 200 {file} file
// @Failure 404 {object} dto.ErrorResponse
// @Router /attempts/{id}/results/export [get]
func (c *AttemptController) ExportResults(ctx *gin.Context) {
	attemptID, ok := controller.ParseIDParam(ctx, "id")
	if !ok {
		return
	}
	data, filename, err := c.exporter.ExportResults(ctx.Request.Context(), attemptID, middleware.UserID(ctx))
	if err != nil {
		controller.RespondError(ctx, err, "ExportResults")
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	ctx.Data(http.StatusOK, xlsxContentType, data)
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
