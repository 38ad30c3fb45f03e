package controller

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/cefrexam/internal/dto"
	"github.com/lshigami/cefrexam/internal/service"
	"github.com/lshigami/cefrexam/internal/storage"
	"github.com/rs/zerolog/log"
)

// ParseIDParam reads a positive integer path parameter, writing a 400 when it is malformed.
func ParseIDParam(ctx *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(ctx.Param(name), 10, 32)
	if err != nil || id == 0 {
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid " + name + " format"})
		return 0, false
	}
	return uint(id), true
}

// RespondError maps service errors onto HTTP statuses. Not-found is uniform so callers
// cannot tell a foreign attempt from a missing one.
func RespondError(ctx *gin.Context, err error, op string) {
	var denied *service.AccessDeniedError
	switch {
	case service.IsNotFound(err):
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Not found"})
	case errors.As(err, &denied):
		ctx.JSON(http.StatusForbidden, dto.AccessDecisionResponse{Allowed: false, Reason: denied.Reason, PlanType: string(denied.PlanType)})
	case service.IsInvalidState(err), service.IsValidation(err):
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrUploadTooLarge):
		ctx.JSON(http.StatusRequestEntityTooLarge, dto.ErrorResponse{Message: err.Error()})
	case service.IsUploadRejected(err):
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: err.Error()})
	case errors.Is(err, service.ErrAIUnavailable):
		log.Warn().Err(err).Str("op", op).Msg("AI service unavailable")
		ctx.JSON(http.StatusServiceUnavailable, dto.ErrorResponse{Message: "AI service is temporarily unavailable"})
	default:
		log.Error().Err(err).Str("op", op).Msg("Service error")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Internal server error"})
	}
}

// AudioUploadFromForm opens a multipart file as an AudioUpload. The caller closes the file.
func AudioUploadFromForm(header *multipart.FileHeader) (storage.AudioUpload, multipart.File, error) {
	file, err := header.Open()
	if err != nil {
		return storage.AudioUpload{}, nil, err
	}
	return storage.AudioUpload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}, file, nil
}
