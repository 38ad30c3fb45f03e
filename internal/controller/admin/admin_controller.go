package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/internal/controller"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/service"
	"github.com/rs/zerolog/log"
)

type AdminController struct {
	adminService service.AdminService
}

func NewAdminController(adminService service.AdminService) *AdminController {
	return &AdminController{adminService: adminService}
}

// CreateMockExam godoc
// @Summary (Admin) Create a mock exam
// @Description Creates a mock exam with its ordered bank questions.
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param exam body dto.MockExamCreateDTO true "Mock exam with at least one question"
// @Success 201 {object} dto.MockExamResponseDTO
// @Failure 400 {object} dto.ErrorResponse
// @Failure 403 {object} dto.ErrorResponse
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/mock-exams [post]
func (c *AdminController) CreateMockExam(ctx *gin.Context) {
	var req dto.MockExamCreateDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("Admin CreateMockExam: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}

	resp, err := c.adminService.CreateMockExam(ctx.Request.Context(), req)
	if err != nil {
		controller.RespondError(ctx, err, "Admin CreateMockExam")
		return
	}
	ctx.JSON(http.StatusCreated, resp)
}

// ListMockExams godoc
// @Summary (Admin) List mock exams
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {array} dto.MockExamSummaryDTO
// @Failure 500 {object} dto.ErrorResponse
// @Router /admin/mock-exams [get]
func (c *AdminController) ListMockExams(ctx *gin.Context) {
	exams, err := c.adminService.ListMockExams(ctx.Request.Context())
	if err != nil {
		controller.RespondError(ctx, err, "Admin ListMockExams")
		return
	}
	ctx.JSON(http.StatusOK, exams)
}

// GrantSubscription godoc
// @Summary (Admin) Grant a Pro subscription
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param grant body dto.GrantSubscriptionDTO true "Subscription grant"
// @Success 201 {object} dto.SubscriptionResponseDTO
// @Failure 400 {object} dto.ErrorResponse
// @Router /admin/subscriptions [post]
func (c *AdminController) GrantSubscription(ctx *gin.Context) {
	var req dto.GrantSubscriptionDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	resp, err := c.adminService.GrantSubscription(ctx.Request.Context(), req)
	if err != nil {
		controller.RespondError(ctx, err, "Admin GrantSubscription")
		return
	}
	log.Info().Str("userID", req.UserID).Int("durationDays", req.DurationDays).Msg("Pro subscription granted")
	ctx.JSON(http.StatusCreated, resp)
}

// GrantPurchase godoc
// @Summary (Admin) Grant a Standard mock exam purchase
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param grant body dto.GrantPurchaseDTO true "Purchase grant"
// @Success 201 {object} dto.PurchaseResponseDTO
// @Failure 400 {object} dto.ErrorResponse
// @Router /admin/purchases [post]
func (c *AdminController) GrantPurchase(ctx *gin.Context) {
	var req dto.GrantPurchaseDTO
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, dto.NewBindErrorResponse(err))
		return
	}
	resp, err := c.adminService.GrantPurchase(ctx.Request.Context(), req)
	if err != nil {
		controller.RespondError(ctx, err, "Admin GrantPurchase")
		return
	}
	log.Info().Str("userID", req.UserID).Int("uses", req.Uses).Msg("Standard purchase granted")
	ctx.JSON(http.StatusCreated, resp)
}
