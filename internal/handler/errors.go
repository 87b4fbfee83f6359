package handler

import (
	"errors"
	"net/http"

	"github.com/anoirbs/hotel-sub000/internal/domain"
	"github.com/anoirbs/hotel-sub000/pkg/logger"
	"github.com/anoirbs/hotel-sub000/pkg/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// handleError maps service errors to HTTP responses
func handleError(c *gin.Context, err error) {
	var (
		validation *domain.ValidationError
		notFound   *domain.NotFoundError
		incomplete *domain.PaymentIncompleteError
		conflict   *domain.ConflictError
		external   *domain.ExternalServiceError
	)

	switch {
	case errors.As(err, &validation):
		response.Error(c, http.StatusBadRequest, response.ErrorBody{
			Error:   "Bad Request",
			Code:    response.CodeValidation,
			Message: validation.Error(),
		})
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrInvalidCredentials):
		response.Error(c, http.StatusUnauthorized, response.ErrorBody{
			Error:   "Unauthorized",
			Code:    response.CodeUnauthorized,
			Message: err.Error(),
		})
	case errors.Is(err, domain.ErrOwnership):
		response.Error(c, http.StatusForbidden, response.ErrorBody{
			Error:   "Forbidden",
			Code:    response.CodeForbidden,
			Message: err.Error(),
		})
	case errors.As(err, &notFound):
		response.NotFound(c, notFound.Error())
	case errors.As(err, &incomplete):
		response.Error(c, http.StatusPaymentRequired, response.ErrorBody{
			Error:         "Payment Required",
			Code:          response.CodePaymentRequired,
			Message:       incomplete.Error(),
			PaymentStatus: incomplete.Status,
		})
	case errors.As(err, &conflict):
		response.Error(c, http.StatusConflict, response.ErrorBody{
			Error:            "Conflict",
			Code:             response.CodeConflict,
			Message:          conflict.Error(),
			RefundRequired:   conflict.RefundRequired,
			PaymentReference: conflict.PaymentReference,
		})
	case errors.Is(err, domain.ErrRoomUnavailable),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrEmailTaken),
		errors.Is(err, domain.ErrRoomNumberTaken):
		response.Error(c, http.StatusConflict, response.ErrorBody{
			Error:   "Conflict",
			Code:    response.CodeConflict,
			Message: err.Error(),
		})
	case errors.As(err, &external):
		logger.Get().ErrorContext(c.Request.Context(), "external service failure",
			zap.String("service", external.Service),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, response.ErrorBody{
			Error:   "Internal Server Error",
			Code:    response.CodeExternalService,
			Message: external.Service + " unavailable",
		})
	default:
		logger.Get().ErrorContext(c.Request.Context(), "request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		response.InternalError(c)
	}
}

// bindError reports a request that failed binding or validation tags
func bindError(c *gin.Context, err error) {
	response.BadRequest(c, err.Error())
}
