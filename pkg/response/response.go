package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrorBody is the JSON shape of every failed request
type ErrorBody struct {
	Error            string `json:"error"`
	Code             string `json:"code"`
	Message          string `json:"message,omitempty"`
	RefundRequired   bool   `json:"refund_required,omitempty"`
	PaymentReference string `json:"payment_reference,omitempty"`
	PaymentStatus    string `json:"payment_status,omitempty"`
}

// Error codes shared by handlers and middleware
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodePaymentRequired  = "PAYMENT_INCOMPLETE"
	CodeRateLimited      = "RATE_LIMITED"
	CodeIdempotencyClash = "IDEMPOTENCY_CONFLICT"
	CodeExternalService  = "EXTERNAL_SERVICE_ERROR"
	CodeInternal         = "INTERNAL_ERROR"
)

// OK writes data with 200
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created writes data with 201
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, data)
}

// Error writes body with status
func Error(c *gin.Context, status int, body ErrorBody) {
	c.JSON(status, body)
}

// Abort writes body with status and stops the handler chain
func Abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, ErrorBody{
		Error:   http.StatusText(status),
		Code:    code,
		Message: message,
	})
}

func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, ErrorBody{Error: "Bad Request", Code: CodeValidation, Message: message})
}

func Unauthorized(c *gin.Context, message string) {
	Abort(c, http.StatusUnauthorized, CodeUnauthorized, message)
}

func Forbidden(c *gin.Context, message string) {
	Abort(c, http.StatusForbidden, CodeForbidden, message)
}

func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, ErrorBody{Error: "Not Found", Code: CodeNotFound, Message: message})
}

// InternalError hides err from the client
func InternalError(c *gin.Context) {
	Error(c, http.StatusInternalServerError, ErrorBody{
		Error:   "Internal Server Error",
		Code:    CodeInternal,
		Message: "an unexpected error occurred",
	})
}
